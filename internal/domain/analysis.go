package domain

import (
	"encoding/json"
	"sort"
)

// KafkaCall is one broker call recorded in IntegrationAnalysis.
type KafkaCall struct {
	Topic      string `json:"topic"`
	Operation  string `json:"operation"`
	ClientType string `json:"clientType"`
}

// CamelCall is one routing endpoint recorded in IntegrationAnalysis.
type CamelCall struct {
	URI          string `json:"uri"`
	EndpointType string `json:"endpointType,omitempty"`
	Direction    string `json:"direction"`
}

// IntegrationAnalysis is the persisted form of a method's integration
// summary, stored under the "integrationAnalysis" library node meta key.
type IntegrationAnalysis struct {
	URLs              []string    `json:"urls"`
	HTTPMethods       []string    `json:"httpMethods"`
	ClientType        string      `json:"clientType,omitempty"`
	HasRetry          bool        `json:"hasRetry"`
	HasTimeout        bool        `json:"hasTimeout"`
	HasCircuitBreaker bool        `json:"hasCircuitBreaker"`
	KafkaTopics       []string    `json:"kafkaTopics"`
	KafkaCalls        []KafkaCall `json:"kafkaCalls"`
	CamelURIs         []string    `json:"camelUris"`
	CamelCalls        []CamelCall `json:"camelCalls"`
	IsParentClient    bool        `json:"isParentClient"`
}

// MetaIntegrationAnalysis is the library node meta key holding IntegrationAnalysis.
const MetaIntegrationAnalysis = "integrationAnalysis"

// NewIntegrationAnalysis folds integration points into their persisted shape.
// Lists are deduplicated and sorted so that equal inputs encode identically.
func NewIntegrationAnalysis(points []IntegrationPoint, isParentClient bool) IntegrationAnalysis {
	a := IntegrationAnalysis{
		URLs:           []string{},
		HTTPMethods:    []string{},
		KafkaTopics:    []string{},
		KafkaCalls:     []KafkaCall{},
		CamelURIs:      []string{},
		CamelCalls:     []CamelCall{},
		IsParentClient: isParentClient,
	}
	seenKafka := map[KafkaCall]bool{}
	seenCamel := map[CamelCall]bool{}
	for _, p := range points {
		switch v := p.(type) {
		case HTTPEndpoint:
			a.URLs = addSorted(a.URLs, v.URL)
			if v.HTTPMethod != "" {
				a.HTTPMethods = addSorted(a.HTTPMethods, v.HTTPMethod)
			}
			if a.ClientType == "" {
				a.ClientType = v.ClientType
			}
			a.HasRetry = a.HasRetry || v.HasRetry
			a.HasTimeout = a.HasTimeout || v.HasTimeout
			a.HasCircuitBreaker = a.HasCircuitBreaker || v.HasCircuitBreaker
		case KafkaTopic:
			a.KafkaTopics = addSorted(a.KafkaTopics, v.Topic)
			call := KafkaCall{Topic: v.Topic, Operation: string(v.Operation), ClientType: v.ClientType}
			if !seenKafka[call] {
				seenKafka[call] = true
				a.KafkaCalls = append(a.KafkaCalls, call)
			}
		case CamelRoute:
			a.CamelURIs = addSorted(a.CamelURIs, v.URI)
			call := CamelCall{URI: v.URI, EndpointType: v.EndpointType, Direction: string(v.Direction)}
			if !seenCamel[call] {
				seenCamel[call] = true
				a.CamelCalls = append(a.CamelCalls, call)
			}
		}
	}
	sort.Slice(a.KafkaCalls, func(i, j int) bool {
		if a.KafkaCalls[i].Topic != a.KafkaCalls[j].Topic {
			return a.KafkaCalls[i].Topic < a.KafkaCalls[j].Topic
		}
		return a.KafkaCalls[i].Operation < a.KafkaCalls[j].Operation
	})
	sort.Slice(a.CamelCalls, func(i, j int) bool {
		if a.CamelCalls[i].URI != a.CamelCalls[j].URI {
			return a.CamelCalls[i].URI < a.CamelCalls[j].URI
		}
		return a.CamelCalls[i].Direction < a.CamelCalls[j].Direction
	})
	return a
}

// Empty reports whether no integration was found.
func (a IntegrationAnalysis) Empty() bool {
	return len(a.URLs) == 0 && len(a.KafkaTopics) == 0 && len(a.CamelURIs) == 0
}

// Meta returns the JSON-shaped map stored in node meta.
func (a IntegrationAnalysis) Meta() map[string]any {
	data, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// IntegrationAnalysisFromMeta decodes the value stored under MetaIntegrationAnalysis.
func IntegrationAnalysisFromMeta(v any) (IntegrationAnalysis, bool) {
	if v == nil {
		return IntegrationAnalysis{}, false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return IntegrationAnalysis{}, false
	}
	var a IntegrationAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		return IntegrationAnalysis{}, false
	}
	return a, true
}

// Points expands the analysis back into integration points. Every URL is
// paired with every recorded HTTP method, or with no method when none is known.
func (a IntegrationAnalysis) Points() []IntegrationPoint {
	var out []IntegrationPoint
	methods := a.HTTPMethods
	if len(methods) == 0 {
		methods = []string{""}
	}
	for _, url := range a.URLs {
		for _, m := range methods {
			out = append(out, HTTPEndpoint{
				URL:               url,
				HTTPMethod:        m,
				ClientType:        a.ClientType,
				HasRetry:          a.HasRetry,
				HasTimeout:        a.HasTimeout,
				HasCircuitBreaker: a.HasCircuitBreaker,
			})
		}
	}
	for _, topic := range a.KafkaTopics {
		matched := false
		for _, c := range a.KafkaCalls {
			if c.Topic == topic {
				matched = true
				out = append(out, KafkaTopic{Topic: topic, Operation: KafkaOperation(c.Operation), ClientType: c.ClientType})
			}
		}
		if !matched {
			out = append(out, KafkaTopic{Topic: topic, Operation: KafkaProduce})
		}
	}
	for _, uri := range a.CamelURIs {
		matched := false
		for _, c := range a.CamelCalls {
			if c.URI == uri {
				matched = true
				out = append(out, CamelRoute{URI: uri, EndpointType: c.EndpointType, Direction: CamelDirection(c.Direction)})
			}
		}
		if !matched {
			out = append(out, CamelRoute{URI: uri, Direction: CamelTo})
		}
	}
	return out
}

func addSorted(list []string, v string) []string {
	if v == "" {
		return list
	}
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}
