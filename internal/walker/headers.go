package walker

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/parser"
)

type typeHeader struct {
	annotations []annotation
	modifiers   []string
	kindRepr    string
	name        string
	supertypes  []string
	// properties are Kotlin primary constructor val/var parameters
	// and Java record components.
	properties []fieldDecl
}

type funcHeader struct {
	annotations []annotation
	modifiers   []string
	name        string
	paramNames  []string
	paramTypes  []string
	returnType  string
	throws      []string
}

type fieldDecl struct {
	name        string
	typ         string
	annotations []string
	text        string
	node        *tree_sitter.Node
}

var kotlinTypeKinds = map[string]bool{
	"user_type":          true,
	"nullable_type":      true,
	"function_type":      true,
	"non_nullable_type":  true,
	"parenthesized_type": true,
}

var javaTypeKinds = map[string]string{
	"class_declaration":           "class",
	"interface_declaration":       "interface",
	"enum_declaration":            "enum",
	"record_declaration":          "record",
	"annotation_type_declaration": "annotation",
}

// supertypes lists the extended and implemented types of a declaration.
// Constructor arguments and delegation targets are dropped.
func (e *extractor) supertypes(n *tree_sitter.Node) []string {
	var out []string
	add := func(t *tree_sitter.Node) {
		if s := e.cleanText(t); s != "" {
			out = append(out, s)
		}
	}
	for _, list := range parser.ChildrenOfKind(n, e.spec.SupertypeNodeTypes...) {
		switch list.Kind() {
		case "delegation_specifiers":
			for _, spec := range parser.ChildrenOfKind(list, "delegation_specifier") {
				t := e.lastNamed(spec)
				if t != nil && (t.Kind() == "constructor_invocation" || t.Kind() == "explicit_delegation") {
					t = t.NamedChild(0)
				}
				if t != nil && !e.decorators[t.Kind()] {
					add(t)
				}
			}
		case "superclass":
			add(e.lastNamed(list))
		default:
			types := parser.FirstChildOfKind(list, "type_list")
			for i := uint(0); types != nil && i < types.NamedChildCount(); i++ {
				add(types.NamedChild(i))
			}
		}
	}
	return out
}

// --- Kotlin ---

func (e *extractor) kotlinTypeHeader(n *tree_sitter.Node) typeHeader {
	var h typeHeader
	h.annotations, h.modifiers = e.decorations(n)

	switch n.Kind() {
	case "object_declaration":
		h.kindRepr = "object"
	case "companion_object":
		h.kindRepr = "object"
		h.modifiers = append(h.modifiers, "companion")
		h.name = "Companion"
	default:
		switch {
		case hasToken(n, "interface"):
			h.kindRepr = "interface"
		case hasWord(h.modifiers, "enum"):
			h.kindRepr = "enum"
		case hasWord(h.modifiers, "annotation"):
			h.kindRepr = "annotation"
		case hasWord(h.modifiers, "data"):
			h.kindRepr = "data class"
		default:
			h.kindRepr = "class"
		}
	}
	if name := n.ChildByFieldName("name"); name != nil {
		h.name = unquote(e.text(name))
	}

	// class A @Inject constructor(val a: A, b: B)
	if ctor := parser.FirstChildOfKind(n, "primary_constructor"); ctor != nil {
		params := parser.FirstChildOfKind(ctor, "class_parameters")
		for _, p := range parser.ChildrenOfKind(params, "class_parameter") {
			if !hasToken(p, "val") && !hasToken(p, "var") {
				continue
			}
			name := parser.FirstChildOfKind(p, "identifier")
			if name == nil {
				continue
			}
			anns, _ := e.decorations(p)
			short, _ := annotationNames(anns)
			h.properties = append(h.properties, fieldDecl{
				name:        unquote(e.text(name)),
				typ:         e.cleanText(e.nextNamed(name)),
				annotations: short,
				text:        collapseSpace(e.text(p)),
				node:        p,
			})
		}
	}
	h.supertypes = e.supertypes(n)
	return h
}

func (e *extractor) kotlinFuncHeader(n *tree_sitter.Node) funcHeader {
	var h funcHeader
	h.annotations, h.modifiers = e.decorations(n)
	ctor := n.Kind() == "secondary_constructor"
	if ctor {
		h.name = "constructor"
	} else if name := n.ChildByFieldName("name"); name != nil {
		h.name = unquote(e.text(name))
	}

	params := parser.FirstChildOfKind(n, e.spec.ParamListNodeTypes...)
	for _, p := range parser.ChildrenOfKind(params, "parameter") {
		name := parser.FirstChildOfKind(p, "identifier")
		if name == nil {
			continue
		}
		h.paramNames = append(h.paramNames, unquote(e.text(name)))
		h.paramTypes = append(h.paramTypes, e.cleanText(e.nextNamed(name)))
	}

	if !ctor {
		for s := e.nextNamed(params); s != nil; s = e.nextNamed(s) {
			if kotlinTypeKinds[s.Kind()] {
				h.returnType = e.cleanText(s)
				break
			}
			if s.Kind() == "function_body" {
				break
			}
		}
	}
	return h
}

// kotlinProperty reads `val name: Type = init` in any of its forms. Without
// a declared type a constructor call initializer supplies it.
func (e *extractor) kotlinProperty(n *tree_sitter.Node) (fieldDecl, bool) {
	v := parser.FirstChildOfKind(n, "variable_declaration")
	name := parser.FirstChildOfKind(v, "identifier")
	if name == nil {
		return fieldDecl{}, false
	}
	f := fieldDecl{name: unquote(e.text(name)), text: e.text(n), node: n}
	if t := e.nextNamed(name); t != nil {
		f.typ = e.cleanText(t)
	} else {
		f.typ = e.constructedType(e.kotlinInitializer(v))
	}
	anns, _ := e.decorations(n)
	f.annotations, _ = annotationNames(anns)
	return f, true
}

// kotlinInitializer returns the expression after `=` in a property declaration.
func (e *extractor) kotlinInitializer(v *tree_sitter.Node) *tree_sitter.Node {
	for s := e.nextNamed(v); s != nil; s = e.nextNamed(s) {
		switch s.Kind() {
		case "type_constraints":
			continue
		case "property_delegate", "getter", "setter":
			return nil
		}
		return s
	}
	return nil
}

// --- Java ---

func (e *extractor) javaTypeHeader(n *tree_sitter.Node) typeHeader {
	var h typeHeader
	h.annotations, h.modifiers = e.decorations(n)
	h.kindRepr = javaTypeKinds[n.Kind()]
	if name := n.ChildByFieldName("name"); name != nil {
		h.name = e.text(name)
	}
	if n.Kind() == "record_declaration" {
		for _, p := range parser.ChildrenOfKind(n.ChildByFieldName("parameters"), "formal_parameter") {
			if f, ok := e.javaParameter(p); ok {
				f.text = collapseSpace(e.text(p))
				h.properties = append(h.properties, f)
			}
		}
	}
	h.supertypes = e.supertypes(n)
	return h
}

// javaParameter reads a formal or spread parameter. Varargs become arrays.
func (e *extractor) javaParameter(p *tree_sitter.Node) (fieldDecl, bool) {
	var name, typ *tree_sitter.Node
	suffix := ""
	switch p.Kind() {
	case "formal_parameter":
		name, typ = p.ChildByFieldName("name"), p.ChildByFieldName("type")
		if dims := p.ChildByFieldName("dimensions"); dims != nil {
			suffix = collapseSpace(e.text(dims))
		}
	case "spread_parameter":
		for i := uint(0); i < p.NamedChildCount(); i++ {
			c := p.NamedChild(i)
			switch {
			case c == nil, c.Kind() == "modifiers", e.decorators[c.Kind()]:
			case c.Kind() == "variable_declarator":
				name = c.ChildByFieldName("name")
			case typ == nil:
				typ = c
			}
		}
		suffix = "[]"
	}
	if name == nil || typ == nil {
		return fieldDecl{}, false
	}
	anns, _ := e.decorations(p)
	short, _ := annotationNames(anns)
	return fieldDecl{name: e.text(name), typ: e.cleanText(typ) + suffix, annotations: short, node: p}, true
}

func (e *extractor) javaFuncHeader(n *tree_sitter.Node) funcHeader {
	var h funcHeader
	h.annotations, h.modifiers = e.decorations(n)
	if name := n.ChildByFieldName("name"); name != nil {
		h.name = e.text(name)
	}
	if n.Kind() != "constructor_declaration" {
		h.returnType = e.cleanText(n.ChildByFieldName("type"))
	}

	params := n.ChildByFieldName("parameters")
	for _, p := range parser.ChildrenOfKind(params, "formal_parameter", "spread_parameter") {
		if f, ok := e.javaParameter(p); ok {
			h.paramNames = append(h.paramNames, f.name)
			h.paramTypes = append(h.paramTypes, f.typ)
		}
	}

	if throws := parser.FirstChildOfKind(n, "throws"); throws != nil {
		for i := uint(0); i < throws.NamedChildCount(); i++ {
			if t := throws.NamedChild(i); t != nil && !e.comments[t.Kind()] {
				h.throws = append(h.throws, e.cleanText(t))
			}
		}
	}
	return h
}
