package graph

import (
	"regexp"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// API metadata type tags stored under meta "apiMetadata.type".
const (
	APIHTTP    = "HTTP"
	APIMessage = "MESSAGE"
	APIGRPC    = "GRPC"
)

var (
	quotedRe        = regexp.MustCompile(`"([^"]*)"`)
	requestMethodRe = regexp.MustCompile(`RequestMethod\.([A-Z]+)`)
)

var mappingMethods = []struct {
	ann    string
	method string
}{
	{"getmapping", "GET"},
	{"postmapping", "POST"},
	{"putmapping", "PUT"},
	{"deletemapping", "DELETE"},
	{"patchmapping", "PATCH"},
}

// httpMethodFor returns the HTTP verb implied by mapping annotations, or "".
func httpMethodFor(anns map[string]bool) string {
	for _, m := range mappingMethods {
		if anns[m.ann] {
			return m.method
		}
	}
	if anns["requestmapping"] {
		return "*"
	}
	return ""
}

// FunctionAPIMetadata describes how a function is exposed: an HTTP handler,
// a broker listener or a gRPC method. owner may be nil for top-level functions.
func FunctionAPIMetadata(fn *domain.RawFunction, owner *domain.RawType) map[string]any {
	if m := httpFunctionMetadata(fn, owner); m != nil {
		return m
	}
	if m := brokerMetadata(fn); m != nil {
		return m
	}
	anns := simpleSet(fn.Annotations)
	if anns["grpcmethod"] || (owner != nil && simpleSet(owner.Annotations)["grpcservice"]) {
		service := lastSegment(fn.PkgFQN)
		if owner != nil {
			service = owner.SimpleName
		}
		return compact(map[string]any{
			"type":        APIGRPC,
			"service":     service,
			"method":      fn.Name,
			"packageName": fn.PkgFQN,
		})
	}
	return nil
}

// TypeAPIMetadata describes a type-level mapping: a controller base path or a gRPC service.
func TypeAPIMetadata(t *domain.RawType) map[string]any {
	anns := simpleSet(t.Annotations)
	if anns["grpcservice"] {
		return compact(map[string]any{"type": APIGRPC, "service": t.SimpleName, "method": "*", "packageName": t.PkgFQN})
	}
	if base := basePath(t); base != "" {
		return map[string]any{"type": APIHTTP, "method": "*", "path": base, "basePath": base}
	}
	return nil
}

func httpFunctionMetadata(fn *domain.RawFunction, owner *domain.RawType) map[string]any {
	method := httpMethodFor(simpleSet(fn.Annotations))
	if method == "" {
		return nil
	}
	text := annotationText(fn.AnnotationTexts, "Mapping")
	if method == "*" {
		method = "GET"
		if m := requestMethodRe.FindStringSubmatch(text); m != nil {
			method = m[1]
		}
	}
	path := "/"
	if m := quotedRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		path = m[1]
	}
	return compact(map[string]any{
		"type":     APIHTTP,
		"method":   method,
		"path":     path,
		"basePath": basePath(owner),
	})
}

// basePath is the first string argument of a type-level RequestMapping.
func basePath(t *domain.RawType) string {
	if t == nil || !simpleSet(t.Annotations)["requestmapping"] {
		return ""
	}
	if m := quotedRe.FindStringSubmatch(annotationText(t.AnnotationTexts, "RequestMapping")); m != nil {
		return m[1]
	}
	return ""
}

func brokerMetadata(fn *domain.RawFunction) map[string]any {
	anns := simpleSet(fn.Annotations)
	switch {
	case anns["kafkalistener"]:
		text := annotationText(fn.AnnotationTexts, "KafkaListener")
		return compact(map[string]any{
			"type":          APIMessage,
			"broker":        "KAFKA",
			"topic":         annotationParam(text, "topics", "topic"),
			"consumerGroup": annotationParam(text, "groupId", "group"),
			"direction":     string(domain.KafkaConsume),
		})
	case anns["rabbitlistener"]:
		text := annotationText(fn.AnnotationTexts, "RabbitListener")
		return compact(map[string]any{
			"type":       APIMessage,
			"broker":     "RABBITMQ",
			"queue":      annotationParam(text, "queues", "queue"),
			"exchange":   annotationParam(text, "exchange"),
			"routingKey": annotationParam(text, "routingKey", "key"),
			"direction":  string(domain.KafkaConsume),
		})
	}
	return nil
}

// annotationText returns the first annotation text whose name contains part.
func annotationText(texts []string, part string) string {
	for _, t := range texts {
		name := t
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if strings.Contains(name, part) {
			return t
		}
	}
	return ""
}

// annotationParam reads `name = "v"`, `name = ["v", ...]` or `name = {"v"}` from annotation text.
func annotationParam(text string, names ...string) string {
	for _, name := range names {
		re := regexp.MustCompile(regexp.QuoteMeta(name) + `\s*=\s*[\[{]?\s*"([^"]+)"`)
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// compact drops empty string values.
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		if s, ok := v.(string); ok && s == "" {
			delete(m, k)
		}
	}
	return m
}
