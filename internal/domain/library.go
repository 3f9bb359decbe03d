package domain

import (
	"fmt"
	"strings"
)

// Coordinate is a Maven-style group:artifact:version triple.
type Coordinate struct {
	Group    string
	Artifact string
	Version  string
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s:%s:%s", c.Group, c.Artifact, c.Version)
}

// IsZero reports whether no part of the coordinate is known.
func (c Coordinate) IsZero() bool {
	return c.Group == "" && c.Artifact == "" && c.Version == ""
}

// Library classification tags.
const (
	LibraryFramework = "framework"
	LibraryLibrary   = "library"
	LibraryLanguage  = "language"
	LibraryInternal  = "internal"
	LibraryExternal  = "external"
)

// ClassifyLibrary returns the classification tag for a group id. Groups
// matching one of the company prefixes are internal.
func ClassifyLibrary(group string, companyPrefixes []string) string {
	for _, p := range companyPrefixes {
		if p != "" && strings.HasPrefix(group, p) {
			return LibraryInternal
		}
	}
	switch {
	case strings.HasPrefix(group, "org.springframework"):
		return LibraryFramework
	case strings.HasPrefix(group, "com.fasterxml.jackson"):
		return LibraryLibrary
	case strings.HasPrefix(group, "org.jetbrains.kotlin"):
		return LibraryLanguage
	default:
		return LibraryExternal
	}
}

// Library is one analyzed artifact.
type Library struct {
	ID         int64
	Coordinate Coordinate
	Kind       string
	Meta       map[string]any
}

// LibraryNode is a class, method or field found in a library artifact.
type LibraryNode struct {
	ID          int64
	LibraryID   int64
	FQN         string
	Name        string
	PackageName string
	Kind        NodeKind
	ParentID    *int64
	FilePath    string
	Signature   string
	Meta        map[string]any
}

// MetaMap returns meta[key] if it is a nested object.
func (n *LibraryNode) MetaMap(key string) map[string]any {
	if n == nil || n.Meta == nil {
		return nil
	}
	m, _ := n.Meta[key].(map[string]any)
	return m
}

// NodeLibraryEdge links an application node to a library node.
type NodeLibraryEdge struct {
	ID            int64
	NodeID        int64
	LibraryNodeID int64
	Kind          EdgeKind
	Evidence      map[string]any
}
