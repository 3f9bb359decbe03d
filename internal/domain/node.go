package domain

import (
	"time"

	"github.com/DeusData/docgraph/internal/lang"
)

// Application is one ingested repository. Nodes and edges are scoped to it.
type Application struct {
	ID        int64
	Key       string
	Name      string
	RepoPath  string
	CreatedAt time.Time
}

// Node is a persisted code declaration, unique per (AppID, FQN).
// Nullable columns are pointers; an empty CodeHash means "no source".
type Node struct {
	ID          int64
	AppID       int64
	FQN         string
	Name        string
	PackageName string
	Kind        NodeKind
	Lang        lang.Language
	ParentID    *int64
	FilePath    string
	LineStart   *int
	LineEnd     *int
	SourceCode  string
	DocComment  string
	Signature   string
	CodeHash    *string
	Meta        map[string]any
}

// MetaString returns meta[key] if it is a string.
func (n *Node) MetaString(key string) string {
	if n == nil || n.Meta == nil {
		return ""
	}
	s, _ := n.Meta[key].(string)
	return s
}

// MetaStrings returns meta[key] as a string slice. It accepts both []string
// and the []any shape produced by a JSON round trip.
func (n *Node) MetaStrings(key string) []string {
	if n == nil || n.Meta == nil {
		return nil
	}
	return AsStrings(n.Meta[key])
}

// MetaStringMap returns meta[key] as a map of strings.
func (n *Node) MetaStringMap(key string) map[string]string {
	if n == nil || n.Meta == nil {
		return nil
	}
	switch m := n.Meta[key].(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// IsFunction reports whether the node was produced from a function declaration.
func (n *Node) IsFunction() bool { return n.MetaString(MetaSource) == SourceFunction }

// IsType reports whether the node was produced from a type declaration.
func (n *Node) IsType() bool { return n.MetaString(MetaSource) == SourceType }

// AsStrings converts a loosely-typed JSON value into a string slice.
func AsStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Strength qualifies how much an inferred edge can be trusted.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthNormal Strength = "normal"
	StrengthStrong Strength = "strong"
)

// Edge is a derived relationship, unique per (SrcID, DstID, Kind).
type Edge struct {
	ID         int64
	AppID      int64
	SrcID      int64
	DstID      int64
	Kind       EdgeKind
	Evidence   map[string]any
	Explain    string
	Confidence float64
	Strength   Strength
}
