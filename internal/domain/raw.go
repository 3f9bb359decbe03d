package domain

import "github.com/DeusData/docgraph/internal/lang"

// Span is a 1-based inclusive line range.
type Span struct {
	Start int
	End   int
}

// RawDecl is one declaration emitted by the source walker, before any
// resolution. The concrete types are RawFileUnit, RawType, RawFunction and RawField.
type RawDecl interface {
	rawDecl()
	SourceFile() string
}

// RawFileUnit describes one compilation unit.
type RawFileUnit struct {
	Lang     lang.Language
	FilePath string
	PkgFQN   string
	Imports  []string
	Span     *Span
	Text     string
}

// RawType is a class, interface, enum, record, object or annotation declaration.
type RawType struct {
	Lang            lang.Language
	FilePath        string
	PkgFQN          string
	OwnerFQN        string // set for nested types
	SimpleName      string
	KindRepr        string // "class", "interface", "enum", "record", "object", "annotation"
	Supertypes      []string
	Annotations     []string // short names, e.g. "RestController"
	AnnotationTexts []string // full text with arguments, e.g. `@RequestMapping("/api")`
	Modifiers       []string
	Span            *Span
	Text            string
	Doc             string
}

// RawFunction is a method, constructor or top-level function.
type RawFunction struct {
	Lang            lang.Language
	FilePath        string
	PkgFQN          string
	OwnerFQN        string
	Name            string
	Signature       string
	ParamNames      []string
	ParamTypes      []string
	ReturnType      string
	Annotations     []string
	AnnotationTexts []string
	Usages          []RawUsage
	Locals          map[string]string // variable or parameter name -> declared/inferred type
	Throws          []string
	Span            *Span
	Text            string
	Doc             string
}

// RawField is a property or field declaration.
type RawField struct {
	Lang        lang.Language
	FilePath    string
	PkgFQN      string
	OwnerFQN    string
	Name        string
	TypeRepr    string
	Annotations []string
	Span        *Span
	Text        string
	Doc         string
}

func (RawFileUnit) rawDecl() {}
func (RawType) rawDecl()     {}
func (RawFunction) rawDecl() {}
func (RawField) rawDecl()    {}

func (r RawFileUnit) SourceFile() string { return r.FilePath }
func (r RawType) SourceFile() string     { return r.FilePath }
func (r RawFunction) SourceFile() string { return r.FilePath }
func (r RawField) SourceFile() string    { return r.FilePath }

// UsageKind distinguishes bare references from receiver-qualified ones.
type UsageKind string

const (
	UsageSimple UsageKind = "simple"
	UsageDot    UsageKind = "dot"
)

// RawUsage is a syntactic reference found in a function body.
// Simple usages carry Name; dot usages carry Receiver and Name (the member).
type RawUsage struct {
	Kind     UsageKind `json:"kind"`
	Receiver string    `json:"receiver,omitempty"`
	Name     string    `json:"name"`
	IsCall   bool      `json:"isCall"`
}

// SimpleUsage builds a bare usage.
func SimpleUsage(name string, isCall bool) RawUsage {
	return RawUsage{Kind: UsageSimple, Name: name, IsCall: isCall}
}

// DotUsage builds a receiver-qualified usage.
func DotUsage(receiver, member string, isCall bool) RawUsage {
	return RawUsage{Kind: UsageDot, Receiver: receiver, Name: member, IsCall: isCall}
}

// UsageToMeta converts usages into the JSON-shaped form persisted in node meta.
func UsageToMeta(usages []RawUsage) []any {
	out := make([]any, 0, len(usages))
	for _, u := range usages {
		m := map[string]any{"kind": string(u.Kind), "name": u.Name, "isCall": u.IsCall}
		if u.Receiver != "" {
			m["receiver"] = u.Receiver
		}
		out = append(out, m)
	}
	return out
}

// UsagesFromMeta decodes the persisted form produced by UsageToMeta.
func UsagesFromMeta(v any) []RawUsage {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]RawUsage, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		u := RawUsage{}
		if k, ok := m["kind"].(string); ok {
			u.Kind = UsageKind(k)
		}
		u.Name, _ = m["name"].(string)
		u.Receiver, _ = m["receiver"].(string)
		u.IsCall, _ = m["isCall"].(bool)
		if u.Name == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
