package linker

import (
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// normalizeTypeRef strips nullability, generic arguments, array and vararg
// suffixes: "List<Foo>?" -> "List", "Foo[]" -> "Foo".
func normalizeTypeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, '<'); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimSuffix(ref, "...")
	for strings.HasSuffix(ref, "[]") {
		ref = strings.TrimSuffix(ref, "[]")
	}
	ref = strings.TrimRight(ref, "?! ")
	ref = strings.TrimPrefix(ref, "in ")
	ref = strings.TrimPrefix(ref, "out ")
	if strings.HasPrefix(ref, "(") || strings.Contains(ref, "->") {
		// function types
		return ""
	}
	return strings.TrimSpace(ref)
}

func simpleOf(ref string) string {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// ResolveType resolves a type reference as written in source to a type node.
// The lookup order is exact FQN, imports, the current package, and finally a
// unique simple-name match. A matching import is authoritative: when it names
// a type outside the application the result is nil even if the package has a
// type of the same simple name.
func (x *NodeIndex) ResolveType(ref string, imports []string, pkg string) *domain.Node {
	fqn, ok := x.resolveTypeName(ref, imports, pkg)
	if !ok {
		return nil
	}
	n := x.Get(fqn)
	if !isTypeNode(n) {
		return nil
	}
	return n
}

// resolveTypeName returns the FQN a reference denotes, whether or not the
// application declares it. Library lookups use the result directly.
func (x *NodeIndex) resolveTypeName(ref string, imports []string, pkg string) (string, bool) {
	ref = normalizeTypeRef(ref)
	if ref == "" {
		return "", false
	}
	if strings.Contains(ref, ".") {
		if isTypeNode(x.Get(ref)) {
			return ref, true
		}
	}

	first, rest, qualified := strings.Cut(ref, ".")
	for _, imp := range imports {
		if imp == ref {
			return ref, true
		}
		if strings.HasSuffix(imp, "."+first) {
			if qualified {
				return imp + "." + rest, true
			}
			return imp, true
		}
	}

	if pkg != "" {
		if cand := pkg + "." + ref; isTypeNode(x.Get(cand)) {
			return cand, true
		}
	}
	for _, imp := range imports {
		if base, ok := strings.CutSuffix(imp, ".*"); ok {
			if cand := base + "." + ref; isTypeNode(x.Get(cand)) {
				return cand, true
			}
		}
	}

	var found *domain.Node
	for _, n := range x.BySimpleName(simpleOf(ref)) {
		if !isTypeNode(n) {
			continue
		}
		if qualified && !strings.HasSuffix(n.FQN, "."+ref) {
			continue
		}
		if found != nil && found != n {
			return "", false
		}
		found = n
	}
	if found == nil {
		if qualified {
			return ref, true
		}
		return "", false
	}
	return found.FQN, true
}

// importedFunction finds a top-level function imported by name.
func (x *NodeIndex) importedFunction(name string, imports []string) *domain.Node {
	for _, imp := range imports {
		if strings.HasSuffix(imp, "."+name) {
			if n := x.Get(imp); isFunctionNode(n) {
				return n
			}
		}
	}
	return nil
}
