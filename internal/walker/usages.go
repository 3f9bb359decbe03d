package walker

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/parser"
)

// noise are calls too generic to carry linking signal.
var noise = map[string]bool{
	"listOf": true, "map": true, "of": true, "timer": true, "start": true,
	"stop": true, "sequenceOf": true, "arrayOf": true, "mutableListOf": true,
}

type segment struct {
	name string
	call bool
}

// collectUsages finds calls and member references in a function body.
// f() yields Simple(f); a.b() yields Dot(a, b, call); a.b yields Dot(a, b).
// A chain a.b().c is reported once per member, receivers rendered with ().
func (e *extractor) collectUsages(body *tree_sitter.Node) []domain.RawUsage {
	chainKinds := toSet(e.spec.CallNodeTypes)
	for _, k := range e.spec.MemberAccessTypes {
		chainKinds[k] = true
	}
	for _, k := range e.spec.ReferenceNodeTypes {
		chainKinds[k] = true
	}

	var out []domain.RawUsage
	seen := map[domain.RawUsage]bool{}
	add := func(u domain.RawUsage) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	// Nodes already rendered as the receiver of an outer chain.
	consumed := map[uintptr]bool{}
	parser.Walk(body, func(n *tree_sitter.Node) bool {
		if !chainKinds[n.Kind()] || consumed[n.Id()] {
			return true
		}
		segs, ok := e.chain(n, consumed)
		if !ok || len(segs) == 0 {
			return true
		}

		if first := segs[0]; first.call && !noise[first.name] {
			add(domain.SimpleUsage(first.name, true))
		}
		receiver := ""
		for k := 1; k < len(segs); k++ {
			prev := segs[k-1]
			if receiver != "" {
				receiver += "."
			}
			receiver += prev.name
			if prev.call {
				receiver += "()"
			}
			member := segs[k]
			if noise[receiver] || noise[member.name] {
				continue
			}
			add(domain.DotUsage(receiver, member.name, member.call))
		}
		return true
	})
	return out
}

// chain flattens a call or member access into its segments. It fails when
// the innermost receiver is not a name, e.g. a literal or a parenthesized
// expression.
func (e *extractor) chain(n *tree_sitter.Node, consumed map[uintptr]bool) ([]segment, bool) {
	if n == nil {
		return nil, false
	}
	consumed[n.Id()] = true

	switch n.Kind() {
	case "identifier", "type_identifier":
		return []segment{{name: unquote(e.text(n))}}, true

	case "this", "this_expression", "super", "super_expression":
		text := e.text(n)
		if text != "this" && text != "super" {
			return nil, false
		}
		return []segment{{name: text}}, true

	case "call_expression":
		segs, ok := e.chain(n.NamedChild(0), consumed)
		if !ok {
			return nil, false
		}
		segs[len(segs)-1].call = true
		return segs, true

	case "navigation_expression", "field_access":
		member := e.lastNamed(n)
		if member == nil || member.Kind() != "identifier" {
			return nil, false
		}
		segs, ok := e.chain(n.NamedChild(0), consumed)
		if !ok {
			return nil, false
		}
		return append(segs, segment{name: unquote(e.text(member))}), true

	case "method_invocation":
		name := n.ChildByFieldName("name")
		if name == nil {
			return nil, false
		}
		seg := segment{name: e.text(name), call: true}
		obj := n.ChildByFieldName("object")
		if obj == nil {
			return []segment{seg}, true
		}
		segs, ok := e.chain(obj, consumed)
		if !ok {
			return nil, false
		}
		return append(segs, seg), true

	case "object_creation_expression":
		// outer.new Inner() has no plain type name to report
		typ := n.ChildByFieldName("type")
		if typ == nil || n.Child(0) == nil || n.Child(0).Kind() != "new" {
			return nil, false
		}
		return []segment{{name: stripGenerics(collapseSpace(e.text(typ))), call: true}}, true

	case "callable_reference", "method_reference":
		recv, member := n.NamedChild(0), e.lastNamed(n)
		if recv == nil || member == nil || recv.Id() == member.Id() || member.Kind() != "identifier" {
			return nil, false
		}
		var segs []segment
		if recv.Kind() == "user_type" {
			for _, id := range parser.ChildrenOfKind(recv, "identifier") {
				segs = append(segs, segment{name: unquote(e.text(id))})
			}
		} else {
			var ok bool
			if segs, ok = e.chain(recv, consumed); !ok {
				return nil, false
			}
		}
		if len(segs) == 0 {
			return nil, false
		}
		return append(segs, segment{name: e.text(member)}), true
	}
	return nil, false
}

// collectLocals maps local variable names to their declared or constructed
// type. Lambda bodies are skipped so closure variables do not leak.
func (e *extractor) collectLocals(body *tree_sitter.Node) map[string]string {
	lambdas := toSet(e.spec.LambdaNodeTypes)
	localKinds := toSet(e.spec.LocalVarNodeTypes)
	locals := map[string]string{}
	set := func(name, typ string) {
		if typ = stripGenerics(typ); name != "" && typ != "" {
			locals[name] = typ
		}
	}

	parser.Walk(body, func(n *tree_sitter.Node) bool {
		kind := n.Kind()
		switch {
		case n != body && lambdas[kind]:
			return false
		case localKinds[kind] && e.lang == lang.Kotlin:
			if f, ok := e.kotlinProperty(n); ok {
				set(f.name, f.typ)
			}
		case localKinds[kind]:
			e.javaLocals(n, set)
		case kind == "catch_block", kind == "for_statement" && e.lang == lang.Kotlin:
			// catch (e: IOException), for (x: Item in items)
			holder := n
			if v := parser.FirstChildOfKind(n, "variable_declaration"); v != nil {
				holder = v
			}
			if name := parser.FirstChildOfKind(holder, "identifier"); name != nil {
				if t := e.nextNamed(name); t != nil && kotlinTypeKinds[t.Kind()] {
					set(unquote(e.text(name)), e.cleanText(t))
				}
			}
		case kind == "catch_formal_parameter":
			types := parser.FirstChildOfKind(n, "catch_type")
			if name := n.ChildByFieldName("name"); name != nil && types != nil && types.NamedChildCount() == 1 {
				set(e.text(name), e.cleanText(types.NamedChild(0)))
			}
		case kind == "enhanced_for_statement":
			if name := n.ChildByFieldName("name"); name != nil {
				set(e.text(name), javaLocalType(e.cleanText(n.ChildByFieldName("type"))))
			}
		}
		return true
	})
	if len(locals) == 0 {
		return nil
	}
	return locals
}

// javaLocals reads a local_variable_declaration. `var` takes the type of a
// constructor initializer; primitives are not recorded.
func (e *extractor) javaLocals(n *tree_sitter.Node, set func(name, typ string)) {
	declared := e.cleanText(n.ChildByFieldName("type"))
	for _, d := range parser.ChildrenOfKind(n, "variable_declarator") {
		name := d.ChildByFieldName("name")
		if name == nil {
			continue
		}
		if declared == "var" {
			set(e.text(name), e.constructedType(d.ChildByFieldName("value")))
			continue
		}
		set(e.text(name), javaLocalType(declared))
	}
}

func javaLocalType(t string) string {
	t = stripGenerics(t)
	simple := t
	for i := len(t) - 1; i >= 0; i-- {
		if t[i] == '.' {
			simple = t[i+1:]
			break
		}
	}
	if !startsUpper(simple) {
		return ""
	}
	return t
}

// constructedType returns the type a constructor call expression builds, or "".
func (e *extractor) constructedType(expr *tree_sitter.Node) string {
	if expr == nil {
		return ""
	}
	switch expr.Kind() {
	case "object_creation_expression":
		if t := expr.ChildByFieldName("type"); t != nil {
			return stripGenerics(collapseSpace(e.text(t)))
		}
	case "call_expression":
		if name := e.dottedName(expr.NamedChild(0)); typeLikeName(name) {
			return name
		}
	}
	return ""
}

// collectThrows returns the exception types constructed by throw
// statements, in order of first appearance.
func (e *extractor) collectThrows(body *tree_sitter.Node) []string {
	throwKinds := toSet(e.spec.ThrowNodeTypes)
	var out []string
	parser.Walk(body, func(n *tree_sitter.Node) bool {
		if !throwKinds[n.Kind()] {
			return true
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			if t := e.constructedType(n.NamedChild(i)); t != "" {
				out = appendUnique(out, t)
				break
			}
		}
		return true
	})
	return out
}
