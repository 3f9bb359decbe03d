package walker

import (
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/parser"
)

func toSet(kinds []string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// unquote strips Kotlin backticks from an identifier.
func unquote(s string) string {
	return strings.Trim(s, "`")
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// stripGenerics removes type arguments, nullability and array markers from a type.
func stripGenerics(t string) string {
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "?")
	t = strings.TrimSuffix(t, "...")
	for strings.HasSuffix(t, "[]") {
		t = strings.TrimSuffix(t, "[]")
	}
	return strings.TrimSpace(t)
}

// typeLikeName reports whether a dotted name reads as a type: optional
// lowercase package segments followed by capitalized segments only.
func typeLikeName(dotted string) bool {
	if dotted == "" {
		return false
	}
	upper := false
	for _, seg := range strings.Split(dotted, ".") {
		switch {
		case startsUpper(seg):
			upper = true
		case upper:
			return false
		}
	}
	return upper
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// hasToken reports whether n has an anonymous child token tok, e.g. "val".
func hasToken(n *tree_sitter.Node, tok string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && !c.IsNamed() && c.Kind() == tok {
			return true
		}
	}
	return false
}

// nextNamed returns the first named sibling after n that is not a comment.
func (e *extractor) nextNamed(n *tree_sitter.Node) *tree_sitter.Node {
	if n == nil {
		return nil
	}
	for s := n.NextNamedSibling(); s != nil; s = s.NextNamedSibling() {
		if !e.comments[s.Kind()] {
			return s
		}
	}
	return nil
}

// lastNamed returns the last named child of n that is not a comment.
func (e *extractor) lastNamed(n *tree_sitter.Node) *tree_sitter.Node {
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(uint(i)); c != nil && !e.comments[c.Kind()] {
			return c
		}
	}
	return nil
}

// cleanText is the source of n without annotations and comments.
func (e *extractor) cleanText(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return e.cleanRange(n, n.StartByte(), n.EndByte())
}

// cleanRange renders source[start:end] with the annotation and comment
// subtrees of n cut out, together with the whitespace following them.
func (e *extractor) cleanRange(n *tree_sitter.Node, start, end uint) string {
	var cuts [][2]uint
	parser.Walk(n, func(c *tree_sitter.Node) bool {
		if c.StartByte() >= end || c.EndByte() <= start {
			return false
		}
		if e.decorators[c.Kind()] || e.comments[c.Kind()] {
			cuts = append(cuts, [2]uint{c.StartByte(), c.EndByte()})
			return false
		}
		return true
	})

	var b strings.Builder
	pos := start
	for _, c := range cuts {
		if c[0] > pos {
			b.Write(e.source[pos:c[0]])
		}
		pos = c[1]
		for pos < end && isSpace(e.source[pos]) {
			pos++
		}
	}
	if pos < end {
		b.Write(e.source[pos:end])
	}
	return collapseSpace(b.String())
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// dottedName renders an identifier or a plain a.b.c member chain, or "".
func (e *extractor) dottedName(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier", "type_identifier":
		return unquote(e.text(n))
	case "navigation_expression", "field_access", "scoped_identifier", "scoped_type_identifier":
		if !hasToken(n, ".") {
			return ""
		}
		recv := e.dottedName(n.NamedChild(0))
		member := e.lastNamed(n)
		if recv == "" || member == nil || (member.Kind() != "identifier" && member.Kind() != "type_identifier") {
			return ""
		}
		return recv + "." + unquote(e.text(member))
	}
	return ""
}

// annotation is one `@Name(args)` occurrence.
type annotation struct {
	short string
	text  string
}

func (e *extractor) annotation(n *tree_sitter.Node) annotation {
	a := annotation{text: collapseSpace(e.text(n))}
	name := n.ChildByFieldName("name")
	if name == nil {
		// Kotlin: [use_site_target] (constructor_invocation | type)
		name = e.lastNamed(n)
		if name != nil && name.Kind() == "constructor_invocation" {
			name = name.NamedChild(0)
		}
	}
	if name != nil {
		short := stripGenerics(collapseSpace(e.text(name)))
		if i := strings.LastIndexByte(short, '.'); i >= 0 {
			short = short[i+1:]
		}
		a.short = unquote(short)
	}
	return a
}

// decorations reads the annotations and modifier words of a declaration.
func (e *extractor) decorations(n *tree_sitter.Node) ([]annotation, []string) {
	mods := parser.FirstChildOfKind(n, "modifiers")
	if mods == nil {
		return nil, nil
	}
	var anns []annotation
	var words []string
	for i := uint(0); i < mods.ChildCount(); i++ {
		c := mods.Child(i)
		switch {
		case c == nil || e.comments[c.Kind()]:
		case e.decorators[c.Kind()]:
			anns = append(anns, e.annotation(c))
		default:
			words = append(words, e.text(c))
		}
	}
	return anns, words
}

func annotationNames(anns []annotation) (short, texts []string) {
	for _, a := range anns {
		short = append(short, a.short)
		texts = append(texts, a.text)
	}
	return short, texts
}
