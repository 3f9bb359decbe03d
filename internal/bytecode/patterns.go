package bytecode

import (
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// Client types recorded on integration points.
const (
	ClientRestTemplate  = "RestTemplate"
	ClientWebClient     = "WebClient"
	ClientHTTPClient    = "HttpClient"
	ClientOkHTTP        = "OkHttp"
	ClientURLConnection = "HttpURLConnection"
	ClientKafkaProducer = "KafkaProducer"
	ClientKafkaConsumer = "KafkaConsumer"
	ClientKafkaTemplate = "KafkaTemplate"
)

const (
	restTemplate       = "org/springframework/web/client/RestTemplate"
	restOperations     = "org/springframework/web/client/RestOperations"
	springHTTPMethod   = "org/springframework/http/HttpMethod"
	webClient          = "org/springframework/web/reactive/function/client/WebClient"
	httpRequest        = "java/net/http/HttpRequest"
	httpRequestBuilder = "java/net/http/HttpRequest$Builder"
	okRequestBuilder   = "okhttp3/Request$Builder"
	javaURL            = "java/net/URL"
	kafkaProducer      = "org/apache/kafka/clients/producer/KafkaProducer"
	producerIface      = "org/apache/kafka/clients/producer/Producer"
	producerRecord     = "org/apache/kafka/clients/producer/ProducerRecord"
	kafkaConsumer      = "org/apache/kafka/clients/consumer/KafkaConsumer"
	consumerIface      = "org/apache/kafka/clients/consumer/Consumer"
	kafkaTemplate      = "org/springframework/kafka/core/KafkaTemplate"
	kafkaOperations    = "org/springframework/kafka/core/KafkaOperations"
	javaPattern        = "java/util/regex/Pattern"
	camelPackage       = "org/apache/camel/"
)

// restTemplateMethods maps RestTemplate calls to their HTTP method. exchange
// and execute take it from the HttpMethod argument.
var restTemplateMethods = map[string]string{
	"getForObject":    "GET",
	"getForEntity":    "GET",
	"headForHeaders":  "HEAD",
	"postForLocation": "POST",
	"postForObject":   "POST",
	"postForEntity":   "POST",
	"put":             "PUT",
	"patchForObject":  "PATCH",
	"delete":          "DELETE",
	"optionsForAllow": "OPTIONS",
	"exchange":        "",
	"execute":         "",
}

var httpVerbs = []string{"get", "post", "put", "delete", "patch", "head", "options"}

// verbOf returns the HTTP method a client method name starts with, e.g.
// "postForEntity" -> "POST".
func verbOf(name string) string {
	lower := strings.ToLower(name)
	for _, v := range httpVerbs {
		if strings.HasPrefix(lower, v) {
			return strings.ToUpper(v)
		}
	}
	return ""
}

// joinURL appends a request path to a base URL. An absolute path wins.
func joinURL(base, path string) string {
	switch {
	case base == "":
		return path
	case path == "":
		return base
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// detect recognizes integration calls. It emits sites and returns the call's
// result value when it models one, or nil.
func (s *scanner) detect(c *call) *value {
	owner, name := c.ref.Owner, c.ref.Name
	switch {
	case owner == restTemplate || owner == restOperations:
		return s.restTemplate(c)
	case strings.HasPrefix(owner, webClient):
		return s.webClient(c)
	case owner == httpRequest || owner == httpRequestBuilder:
		return s.requestBuilder(c, ClientHTTPClient, "uri")
	case owner == okRequestBuilder:
		return s.requestBuilder(c, ClientOkHTTP, "url")
	case owner == javaURL && name == "openConnection":
		conn := objectValue("java/net/HttpURLConnection")
		conn.site = s.emit(c.ins.Offset, domain.HTTPEndpoint{URL: c.recv.str(), HTTPMethod: "GET", ClientType: ClientURLConnection})
		return conn
	case name == "setRequestMethod" && c.recv.site >= 0:
		if m := c.arg(0).str(); m != "" {
			if h, ok := s.sites[c.recv.site].Point.(domain.HTTPEndpoint); ok {
				h.HTTPMethod = strings.ToUpper(m)
				s.sites[c.recv.site].Point = h
			}
		}
		return nil
	case (owner == kafkaProducer || owner == producerIface) && name == "send":
		s.emit(c.ins.Offset, domain.KafkaTopic{Topic: recordTopic(c.arg(0)), Operation: domain.KafkaProduce, ClientType: ClientKafkaProducer})
		return nil
	case (owner == kafkaTemplate || owner == kafkaOperations) && name == "send":
		topic := recordTopic(c.arg(0))
		if len(c.desc.Params) > 0 && isClassType(c.desc.Params[0], javaString) {
			topic = c.arg(0).str()
		}
		s.emit(c.ins.Offset, domain.KafkaTopic{Topic: topic, Operation: domain.KafkaProduce, ClientType: ClientKafkaTemplate})
		return nil
	case (owner == kafkaConsumer || owner == consumerIface) && name == "subscribe":
		for _, topic := range subscribedTopics(c.arg(0)) {
			s.emit(c.ins.Offset, domain.KafkaTopic{Topic: topic, Operation: domain.KafkaConsume, ClientType: ClientKafkaConsumer})
		}
		return nil
	case s.isCamelOwner(owner):
		s.camel(c)
	}
	return nil
}

func (s *scanner) restTemplate(c *call) *value {
	method, ok := restTemplateMethods[c.ref.Name]
	if !ok {
		return nil
	}
	if m := c.arg(1); method == "" && m.kind == vStatic && m.typ == springHTTPMethod {
		method = m.text
	}
	s.emit(c.ins.Offset, domain.HTTPEndpoint{URL: c.arg(0).str(), HTTPMethod: method, ClientType: ClientRestTemplate})
	return nil
}

// webClient follows WebClient.create(base) or builder().baseUrl(base).build(),
// then get()/post()/method(M) and uri(path). Request specs carry the base
// URL in text and the verb in method.
func (s *scanner) webClient(c *call) *value {
	name, recv := c.ref.Name, c.recv
	switch {
	case c.static && name == "create":
		return withText(objectValue(webClient), c.arg(0))
	case c.static && name == "builder":
		return objectValue(webClient + "$Builder")
	case name == "baseUrl" && recv.kind == vObject:
		setText(recv, c.arg(0))
		return recv
	case recv.kind != vObject:
		return nil
	case name == "method" || (verbOf(name) != "" && name == strings.ToLower(verbOf(name))):
		spec := objectValue(internalName(c.desc.Return))
		spec.text, spec.known = recv.text, recv.known
		spec.method = verbOf(name)
		if name == "method" {
			spec.method = ""
			if m := c.arg(0); m.kind == vStatic && m.typ == springHTTPMethod {
				spec.method = m.text
			}
		}
		return spec
	case name == "uri":
		path := ""
		if len(c.desc.Params) > 0 && !strings.HasPrefix(c.desc.Params[0], "Ljava/util/function/") {
			path = c.arg(0).str()
		}
		base := ""
		if recv.known {
			base = recv.text
		}
		recv.site = s.emit(c.ins.Offset, domain.HTTPEndpoint{URL: joinURL(base, path), HTTPMethod: recv.method, ClientType: ClientWebClient})
		return recv
	case (name == "retrieve" || strings.HasPrefix(name, "exchange")) && recv.site < 0 && recv.method != "":
		recv.site = s.emit(c.ins.Offset, domain.HTTPEndpoint{URL: recv.str(), HTTPMethod: recv.method, ClientType: ClientWebClient})
	}
	if strings.HasPrefix(c.desc.Return, "L"+webClient) {
		return recv
	}
	return nil
}

// requestBuilder handles java.net.http and OkHttp request builders, which
// collect a URL and a verb and are finished with build().
func (s *scanner) requestBuilder(c *call, client, urlSetter string) *value {
	name, recv := c.ref.Name, c.recv
	switch {
	case c.static && name == "newBuilder":
		b := objectValue(httpRequestBuilder)
		if len(c.args) == 1 {
			setText(b, c.arg(0))
		}
		return b
	case recv.kind != vObject:
		return nil
	case name == urlSetter:
		setText(recv, c.arg(0))
		return recv
	case name == "method":
		recv.method = strings.ToUpper(c.arg(0).str())
		return recv
	case verbOf(name) != "" && strings.EqualFold(name, verbOf(name)):
		recv.method = verbOf(name)
		return recv
	case name == "build":
		method := recv.method
		if method == "" {
			method = "GET"
		}
		req := objectValue(httpRequest)
		req.text, req.known = recv.text, recv.known
		req.site = s.emit(c.ins.Offset, domain.HTTPEndpoint{URL: recv.str(), HTTPMethod: method, ClientType: client})
		return req
	}
	return nil
}

// internalName strips the L...; wrapper of a class descriptor.
func internalName(desc string) string {
	return strings.TrimSuffix(strings.TrimPrefix(desc, "L"), ";")
}

func recordTopic(v *value) string {
	if v.kind == vObject && v.typ == producerRecord {
		return v.str()
	}
	return ""
}

func subscribedTopics(v *value) []string {
	switch {
	case v.kind == vList:
		var out []string
		for _, it := range v.items {
			out = append(out, it.str())
		}
		return out
	case v.kind == vObject && v.typ == javaPattern:
		return []string{v.str()}
	}
	return []string{""}
}

// isCamelOwner matches Camel DSL types, and the route builder itself when
// it calls inherited from()/to() on this.
func (s *scanner) isCamelOwner(owner string) bool {
	if strings.HasPrefix(owner, camelPackage) {
		return true
	}
	return owner == s.class.ThisClass && strings.HasPrefix(s.class.SuperClass, camelPackage)
}

func (s *scanner) camel(c *call) {
	var dir domain.CamelDirection
	switch c.ref.Name {
	case "from":
		dir = domain.CamelFrom
	case "to", "toD":
		dir = domain.CamelTo
	default:
		return
	}
	if len(c.desc.Params) == 0 {
		return
	}
	var uris []*value
	switch c.desc.Params[0] {
	case "Ljava/lang/String;":
		uris = c.args[:1]
	case "[Ljava/lang/String;":
		uris = c.arg(0).items
	}
	for _, u := range uris {
		uri := u.str()
		if uri == "" {
			continue
		}
		var endpointType string
		if i := strings.IndexByte(uri, ':'); i > 0 {
			endpointType = uri[:i]
		}
		s.emit(c.ins.Offset, domain.CamelRoute{URI: uri, EndpointType: endpointType, Direction: dir})
	}
}

// resiliency collects retry, timeout and circuit breaker use within a method.
type resiliency struct {
	retry, timeout, breaker bool
}

var resilienceAnnotations = map[string]func(*resiliency){
	"org.springframework.retry.annotation.Retryable":                  func(r *resiliency) { r.retry = true },
	"io.github.resilience4j.retry.annotation.Retry":                   func(r *resiliency) { r.retry = true },
	"io.github.resilience4j.timelimiter.annotation.TimeLimiter":       func(r *resiliency) { r.timeout = true },
	"io.github.resilience4j.circuitbreaker.annotation.CircuitBreaker": func(r *resiliency) { r.breaker = true },
}

func (r *resiliency) fromAnnotations(anns []Annotation) {
	for _, a := range anns {
		if set, ok := resilienceAnnotations[a.Name()]; ok {
			set(r)
		}
	}
}

func (r *resiliency) fromCall(ref MemberRef) {
	owner, name := ref.Owner, ref.Name
	switch {
	case strings.HasPrefix(owner, "io/github/resilience4j/retry/"),
		strings.HasPrefix(owner, "org/springframework/retry/"):
		r.retry = true
	case strings.HasPrefix(owner, "io/github/resilience4j/timelimiter/"):
		r.timeout = true
	case strings.HasPrefix(owner, "io/github/resilience4j/circuitbreaker/"):
		r.breaker = true
	case strings.HasPrefix(owner, "reactor/") || strings.HasPrefix(owner, webClient):
		switch name {
		case "retry", "retryWhen":
			r.retry = true
		case "timeout":
			r.timeout = true
		}
	case strings.HasPrefix(owner, "java/net/") || strings.HasPrefix(owner, "okhttp3/"):
		if strings.HasSuffix(name, "Timeout") || name == "timeout" {
			r.timeout = true
		}
	}
}

// apply marks every HTTP site of the method.
func (r resiliency) apply(sites []Site) {
	for i, site := range sites {
		h, ok := site.Point.(domain.HTTPEndpoint)
		if !ok {
			continue
		}
		h.HasRetry = h.HasRetry || r.retry
		h.HasTimeout = h.HasTimeout || r.timeout
		h.HasCircuitBreaker = h.HasCircuitBreaker || r.breaker
		sites[i].Point = h
	}
}
