package domain

// IntegrationPoint is an outbound call to an external system found in library
// bytecode. Exactly three types implement it: HTTPEndpoint, KafkaTopic and CamelRoute.
type IntegrationPoint interface {
	integrationPoint()
}

// HTTPEndpoint is an outbound HTTP call.
type HTTPEndpoint struct {
	URL               string
	HTTPMethod        string // empty when unknown
	ClientType        string
	HasRetry          bool
	HasTimeout        bool
	HasCircuitBreaker bool
}

// KafkaOperation is the direction of a broker interaction.
type KafkaOperation string

const (
	KafkaProduce KafkaOperation = "PRODUCE"
	KafkaConsume KafkaOperation = "CONSUME"
)

// KafkaTopic is a produce or consume call against a topic.
type KafkaTopic struct {
	Topic      string
	Operation  KafkaOperation
	ClientType string
}

// CamelDirection is the side of a route an endpoint appears on.
type CamelDirection string

const (
	CamelFrom CamelDirection = "FROM"
	CamelTo   CamelDirection = "TO"
)

// CamelRoute is an endpoint URI used in a routing builder.
type CamelRoute struct {
	URI          string
	EndpointType string
	Direction    CamelDirection
}

func (HTTPEndpoint) integrationPoint() {}
func (KafkaTopic) integrationPoint()   {}
func (CamelRoute) integrationPoint()   {}
