package domain

// NodeKind is the closed set of node types in the graph.
type NodeKind string

const (
	KindRepo       NodeKind = "REPO"
	KindModule     NodeKind = "MODULE"
	KindPackage    NodeKind = "PACKAGE"
	KindClass      NodeKind = "CLASS"
	KindInterface  NodeKind = "INTERFACE"
	KindEnum       NodeKind = "ENUM"
	KindRecord     NodeKind = "RECORD"
	KindMethod     NodeKind = "METHOD"
	KindField      NodeKind = "FIELD"
	KindException  NodeKind = "EXCEPTION"
	KindTest       NodeKind = "TEST"
	KindMapper     NodeKind = "MAPPER"
	KindService    NodeKind = "SERVICE"
	KindEndpoint   NodeKind = "ENDPOINT"
	KindClient     NodeKind = "CLIENT"
	KindTopic      NodeKind = "TOPIC"
	KindJob        NodeKind = "JOB"
	KindDBTable    NodeKind = "DB_TABLE"
	KindDBView     NodeKind = "DB_VIEW"
	KindDBQuery    NodeKind = "DB_QUERY"
	KindSchema     NodeKind = "SCHEMA"
	KindConfig     NodeKind = "CONFIG"
	KindMigration  NodeKind = "MIGRATION"
	KindAnnotation NodeKind = "ANNOTATION"
)

// AllNodeKinds returns every node kind in declaration order.
func AllNodeKinds() []NodeKind {
	return []NodeKind{
		KindRepo, KindModule, KindPackage, KindClass, KindInterface, KindEnum, KindRecord,
		KindMethod, KindField, KindException, KindTest, KindMapper, KindService, KindEndpoint,
		KindClient, KindTopic, KindJob, KindDBTable, KindDBView, KindDBQuery, KindSchema,
		KindConfig, KindMigration, KindAnnotation,
	}
}

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	for _, known := range AllNodeKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// typeKinds are the kinds a type declaration can end up with after refinement.
var typeKinds = map[NodeKind]bool{
	KindClass: true, KindInterface: true, KindEnum: true, KindRecord: true,
	KindException: true, KindTest: true, KindMapper: true, KindService: true,
	KindEndpoint: true, KindClient: true, KindTopic: true, KindJob: true,
	KindDBQuery: true, KindSchema: true, KindConfig: true, KindMigration: true,
	KindAnnotation: true,
}

// IsTypeKind reports whether k can label a type declaration.
func (k NodeKind) IsTypeKind() bool { return typeKinds[k] }

// EdgeKind is the closed set of relationship types.
type EdgeKind string

const (
	EdgeContains         EdgeKind = "CONTAINS"
	EdgeDependsOn        EdgeKind = "DEPENDS_ON"
	EdgeImplements       EdgeKind = "IMPLEMENTS"
	EdgeInherits         EdgeKind = "INHERITS"
	EdgeExtends          EdgeKind = "EXTENDS"
	EdgeOverrides        EdgeKind = "OVERRIDES"
	EdgeAnnotatedWith    EdgeKind = "ANNOTATED_WITH"
	EdgeCalls            EdgeKind = "CALLS"
	EdgeCallsCode        EdgeKind = "CALLS_CODE"
	EdgeThrows           EdgeKind = "THROWS"
	EdgeLocks            EdgeKind = "LOCKS"
	EdgeCallsHTTP        EdgeKind = "CALLS_HTTP"
	EdgeCallsGRPC        EdgeKind = "CALLS_GRPC"
	EdgeProduces         EdgeKind = "PRODUCES"
	EdgeConsumes         EdgeKind = "CONSUMES"
	EdgeQueries          EdgeKind = "QUERIES"
	EdgeReads            EdgeKind = "READS"
	EdgeWrites           EdgeKind = "WRITES"
	EdgeContractsWith    EdgeKind = "CONTRACTS_WITH"
	EdgeConfigures       EdgeKind = "CONFIGURES"
	EdgeCircuitBreakerTo EdgeKind = "CIRCUIT_BREAKER_TO"
	EdgeRetriesTo        EdgeKind = "RETRIES_TO"
	EdgeTimeoutsTo       EdgeKind = "TIMEOUTS_TO"
)

// AllEdgeKinds returns every edge kind in declaration order.
func AllEdgeKinds() []EdgeKind {
	return []EdgeKind{
		EdgeContains, EdgeDependsOn, EdgeImplements, EdgeInherits, EdgeExtends, EdgeOverrides,
		EdgeAnnotatedWith, EdgeCalls, EdgeCallsCode, EdgeThrows, EdgeLocks, EdgeCallsHTTP,
		EdgeCallsGRPC, EdgeProduces, EdgeConsumes, EdgeQueries, EdgeReads, EdgeWrites,
		EdgeContractsWith, EdgeConfigures, EdgeCircuitBreakerTo, EdgeRetriesTo, EdgeTimeoutsTo,
	}
}
