package graph

import (
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

// RefineContext is the file-level context handed to refiners.
type RefineContext struct {
	Lang    lang.Language
	Imports []string
}

// Refiner narrows the base kind of a declaration from its annotations,
// supertypes, imports and naming. A refiner returns false when it has no opinion.
type Refiner interface {
	Name() string
	Supports(l lang.Language) bool
	RefineType(base domain.NodeKind, raw *domain.RawType, ctx RefineContext) (domain.NodeKind, bool)
	RefineFunction(base domain.NodeKind, raw *domain.RawFunction, ctx RefineContext) (domain.NodeKind, bool)
	RefineField(base domain.NodeKind, raw *domain.RawField, ctx RefineContext) (domain.NodeKind, bool)
}

// RefinerChain consults refiners in order; the first opinion wins.
type RefinerChain []Refiner

// ForType returns the refined kind of a type, or base.
func (c RefinerChain) ForType(base domain.NodeKind, raw *domain.RawType, ctx RefineContext) domain.NodeKind {
	for _, r := range c {
		if !r.Supports(ctx.Lang) {
			continue
		}
		if k, ok := r.RefineType(base, raw, ctx); ok {
			return k
		}
	}
	return base
}

// ForFunction returns the refined kind of a function, or base.
func (c RefinerChain) ForFunction(base domain.NodeKind, raw *domain.RawFunction, ctx RefineContext) domain.NodeKind {
	for _, r := range c {
		if !r.Supports(ctx.Lang) {
			continue
		}
		if k, ok := r.RefineFunction(base, raw, ctx); ok {
			return k
		}
	}
	return base
}

// ForField returns the refined kind of a field, or base.
func (c RefinerChain) ForField(base domain.NodeKind, raw *domain.RawField, ctx RefineContext) domain.NodeKind {
	for _, r := range c {
		if !r.Supports(ctx.Lang) {
			continue
		}
		if k, ok := r.RefineField(base, raw, ctx); ok {
			return k
		}
	}
	return base
}

// DefaultRefiners returns the built-in chain in priority order.
func DefaultRefiners() RefinerChain {
	return RefinerChain{
		typeRule{"spring-boot-application", springBootApp},
		typeRule{"endpoint-class", endpointClass},
		typeRule{"client-class", clientClass},
		typeRule{"service-layer", serviceLayer},
		typeRule{"jpa-repository", jpaRepository},
		typeRule{"mybatis-mapper", mybatisMapper},
		typeRule{"config-class", configClass},
		typeRule{"job-worker", jobWorker},
		typeRule{"messaging-topic", messagingTopic},
		typeRule{"migration-class", migrationClass},
		typeRule{"schema-model", schemaModel},
		typeRule{"test-class", testClass},
		typeRule{"exception-type", exceptionType},
		functionRule{},
	}
}

// typeRule adapts a type predicate to the Refiner interface.
type typeRule struct {
	name string
	fn   func(t typeFacts) (domain.NodeKind, bool)
}

func (r typeRule) Name() string                  { return r.name }
func (r typeRule) Supports(l lang.Language) bool { return l == lang.Kotlin || l == lang.Java }

func (r typeRule) RefineType(_ domain.NodeKind, raw *domain.RawType, ctx RefineContext) (domain.NodeKind, bool) {
	return r.fn(newTypeFacts(raw, ctx))
}

func (typeRule) RefineFunction(domain.NodeKind, *domain.RawFunction, RefineContext) (domain.NodeKind, bool) {
	return "", false
}

func (typeRule) RefineField(domain.NodeKind, *domain.RawField, RefineContext) (domain.NodeKind, bool) {
	return "", false
}

// typeFacts is the lowercased view of a type the predicates match against.
type typeFacts struct {
	anns    map[string]bool
	supers  map[string]bool
	imports []string
	name    string
	pkg     string
}

func newTypeFacts(raw *domain.RawType, ctx RefineContext) typeFacts {
	return typeFacts{
		anns:    simpleSet(raw.Annotations),
		supers:  simpleSet(raw.Supertypes),
		imports: lowerAll(ctx.Imports),
		name:    strings.ToLower(raw.SimpleName),
		pkg:     strings.ToLower(raw.PkgFQN),
	}
}

// simpleSet lowercases the last dotted segment of each entry, without generics.
func simpleSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if i := strings.IndexAny(it, "<("); i >= 0 {
			it = it[:i]
		}
		it = strings.TrimSpace(strings.TrimPrefix(it, "@"))
		out[strings.ToLower(lastSegment(it))] = true
	}
	return out
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.ToLower(it)
	}
	return out
}

func (t typeFacts) hasAnn(keys ...string) bool   { return anyIn(t.anns, keys) }
func (t typeFacts) hasSuper(keys ...string) bool { return anyIn(t.supers, keys) }

func (t typeFacts) importsAny(parts ...string) bool {
	for _, p := range parts {
		p = strings.ToLower(p)
		for _, imp := range t.imports {
			if strings.Contains(imp, p) {
				return true
			}
		}
	}
	return false
}

func (t typeFacts) nameEnds(suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(t.name, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func (t typeFacts) nameContains(parts ...string) bool {
	for _, s := range parts {
		if strings.Contains(t.name, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func anyIn(set map[string]bool, keys []string) bool {
	for _, k := range keys {
		if set[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

func springBootApp(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("SpringBootApplication") {
		return domain.KindService, true
	}
	return "", false
}

func endpointClass(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("RestController", "Controller", "GrpcService") {
		return domain.KindEndpoint, true
	}
	return "", false
}

func clientClass(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("FeignClient") || t.importsAny("io.grpc", "net.devh.boot.grpc.client") {
		return domain.KindClient, true
	}
	return "", false
}

func serviceLayer(t typeFacts) (domain.NodeKind, bool) {
	inServicePkg := strings.Contains(t.pkg, ".service")
	if t.hasAnn("Service") ||
		(t.hasAnn("Component") && inServicePkg) ||
		(inServicePkg && t.nameEnds("Service")) {
		return domain.KindService, true
	}
	return "", false
}

func jpaRepository(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("Repository") ||
		t.hasSuper("JpaRepository", "CrudRepository", "PagingAndSortingRepository") ||
		strings.Contains(t.pkg, ".repository") || t.nameEnds("Repository", "Dao") {
		return domain.KindDBQuery, true
	}
	return "", false
}

func mybatisMapper(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("Mapper") || strings.Contains(t.pkg, ".mapper") || t.nameEnds("Mapper") {
		return domain.KindMapper, true
	}
	return "", false
}

func configClass(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("ConfigurationProperties", "Configuration") ||
		strings.Contains(t.pkg, ".config") || t.nameEnds("Config", "Configuration", "Properties") {
		return domain.KindConfig, true
	}
	return "", false
}

func jobWorker(t typeFacts) (domain.NodeKind, bool) {
	switch {
	case t.hasSuper("Job", "Tasklet"):
	case t.importsAny("org.springframework.batch", "org.quartz"):
	case t.importsAny("org.springframework.scheduling.annotation.scheduled") && t.nameContains("Scheduler", "Job", "Worker", "Task"):
	case strings.Contains(t.pkg, ".job") || t.nameEnds("Job", "Worker", "Task", "Scheduler"):
	default:
		return "", false
	}
	return domain.KindJob, true
}

func messagingTopic(t typeFacts) (domain.NodeKind, bool) {
	if !t.importsAny("springframework.kafka", "spring.kafka", "org.apache.kafka", "springframework.amqp", "spring.rabbit", "io.nats") {
		return "", false
	}
	if t.nameEnds("Consumer", "Producer", "Listener") ||
		strings.Contains(t.pkg, ".kafka") || strings.Contains(t.pkg, ".messag") || strings.Contains(t.pkg, ".mq") {
		return domain.KindTopic, true
	}
	return "", false
}

func migrationClass(t typeFacts) (domain.NodeKind, bool) {
	if t.hasSuper("JavaMigration") || t.importsAny("org.flywaydb.core.api.migration") ||
		strings.Contains(t.pkg, ".migration") || t.nameEnds("Migration") {
		return domain.KindMigration, true
	}
	return "", false
}

func schemaModel(t typeFacts) (domain.NodeKind, bool) {
	if t.hasAnn("Schema") || t.importsAny("io.swagger.v3.oas", "org.apache.avro", "io.confluent") ||
		strings.Contains(t.pkg, ".schema") {
		return domain.KindSchema, true
	}
	return "", false
}

func testClass(t typeFacts) (domain.NodeKind, bool) {
	if t.nameEnds("Test", "IT", "Spec") || strings.Contains(t.pkg, ".test") ||
		t.importsAny("org.junit", "junit.jupiter", "kotest", "mockk") {
		return domain.KindTest, true
	}
	return "", false
}

func exceptionType(t typeFacts) (domain.NodeKind, bool) {
	if t.hasSuper("Throwable", "Exception", "RuntimeException") || t.nameEnds("Exception", "Error") {
		return domain.KindException, true
	}
	return "", false
}

// functionRule refines handler methods by their framework annotations.
type functionRule struct{}

func (functionRule) Name() string                  { return "function-annotations" }
func (functionRule) Supports(l lang.Language) bool { return l == lang.Kotlin || l == lang.Java }

func (functionRule) RefineType(domain.NodeKind, *domain.RawType, RefineContext) (domain.NodeKind, bool) {
	return "", false
}

func (functionRule) RefineFunction(_ domain.NodeKind, raw *domain.RawFunction, _ RefineContext) (domain.NodeKind, bool) {
	anns := simpleSet(raw.Annotations)
	if httpMethodFor(anns) != "" {
		return domain.KindEndpoint, true
	}
	if anns["scheduled"] {
		return domain.KindJob, true
	}
	if anns["kafkalistener"] || anns["rabbitlistener"] {
		return domain.KindTopic, true
	}
	return "", false
}

func (functionRule) RefineField(domain.NodeKind, *domain.RawField, RefineContext) (domain.NodeKind, bool) {
	return "", false
}
