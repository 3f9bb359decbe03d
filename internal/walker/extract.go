package walker

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/parser"
)

// memberContainers hold class members one level down from the body node.
var memberContainers = map[string]bool{
	"class_member_declarations": true,
	"enum_body_declarations":    true,
}

// extractor turns one parsed compilation unit into raw declarations.
type extractor struct {
	lang       lang.Language
	spec       *lang.LanguageSpec
	path       string
	source     []byte
	lines      []string
	pkg        string
	decorators map[string]bool
	comments   map[string]bool

	decls []domain.RawDecl
}

func newExtractor(l lang.Language, spec *lang.LanguageSpec, path string, source []byte) *extractor {
	return &extractor{
		lang:       l,
		spec:       spec,
		path:       path,
		source:     source,
		lines:      strings.Split(string(source), "\n"),
		decorators: toSet(spec.DecoratorNodeTypes),
		comments:   toSet(spec.CommentNodeTypes),
	}
}

func (e *extractor) extract(root *tree_sitter.Node) []domain.RawDecl {
	if pkg := parser.FirstChildOfKind(root, e.spec.PackageNodeTypes...); pkg != nil {
		e.pkg = e.qualifiedName(pkg)
	}
	var imports []string
	for _, imp := range parser.ChildrenOfKind(root, e.spec.ImportNodeTypes...) {
		name := e.qualifiedName(imp)
		if name == "" {
			continue
		}
		if hasToken(imp, "*") || parser.FirstChildOfKind(imp, "asterisk") != nil {
			name += ".*"
		}
		imports = append(imports, name)
	}

	lines := len(e.lines)
	if lines > 0 && e.lines[lines-1] == "" {
		lines--
	}
	unit := domain.RawFileUnit{
		Lang:     e.lang,
		FilePath: e.path,
		PkgFQN:   e.pkg,
		Imports:  imports,
		Text:     string(e.source),
	}
	if lines > 0 {
		unit.Span = &domain.Span{Start: 1, End: lines}
	}
	e.decls = append(e.decls, unit)

	var topFuncs, topFields []*tree_sitter.Node
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		kind := child.Kind()
		switch {
		case lang.Contains(e.spec.TypeNodeTypes, kind):
			e.emitType(child, "")
		case lang.Contains(e.spec.FunctionNodeTypes, kind):
			topFuncs = append(topFuncs, child)
		case lang.Contains(e.spec.FieldNodeTypes, kind):
			topFields = append(topFields, child)
		}
	}
	for _, fn := range topFuncs {
		e.emitFunction(fn, "")
	}
	for _, f := range topFields {
		e.emitFields(f, "")
	}
	return e.decls
}

// qualifiedName reads the dotted name of a package or import declaration.
func (e *extractor) qualifiedName(n *tree_sitter.Node) string {
	name := parser.FirstChildOfKind(n, "qualified_identifier", "scoped_identifier", "identifier")
	if name == nil {
		return ""
	}
	return strings.Join(strings.Fields(e.cleanText(name)), "")
}

func (e *extractor) text(n *tree_sitter.Node) string {
	return parser.NodeText(n, e.source)
}

func (e *extractor) span(n *tree_sitter.Node) *domain.Span {
	return &domain.Span{Start: parser.StartLine(n), End: parser.EndLine(n)}
}

func (e *extractor) typeFQN(owner, simple string) string {
	switch {
	case owner != "":
		return owner + "." + simple
	case e.pkg != "":
		return e.pkg + "." + simple
	default:
		return simple
	}
}

func (e *extractor) emitType(n *tree_sitter.Node, owner string) {
	var h typeHeader
	if e.lang == lang.Java {
		h = e.javaTypeHeader(n)
	} else {
		h = e.kotlinTypeHeader(n)
	}
	if h.name == "" {
		return
	}

	fqn := e.typeFQN(owner, h.name)
	short, texts := annotationNames(h.annotations)
	e.decls = append(e.decls, domain.RawType{
		Lang:            e.lang,
		FilePath:        e.path,
		PkgFQN:          e.pkg,
		OwnerFQN:        owner,
		SimpleName:      h.name,
		KindRepr:        h.kindRepr,
		Supertypes:      h.supertypes,
		Annotations:     short,
		AnnotationTexts: texts,
		Modifiers:       h.modifiers,
		Span:            e.span(n),
		Text:            e.text(n),
		Doc:             docBefore(e.lines, parser.StartLine(n)),
	})

	for _, p := range h.properties {
		e.decls = append(e.decls, domain.RawField{
			Lang:        e.lang,
			FilePath:    e.path,
			PkgFQN:      e.pkg,
			OwnerFQN:    fqn,
			Name:        p.name,
			TypeRepr:    p.typ,
			Annotations: p.annotations,
			Span:        e.span(p.node),
			Text:        p.text,
		})
	}

	var fields, funcs, nested []*tree_sitter.Node
	var collect func(container *tree_sitter.Node)
	collect = func(container *tree_sitter.Node) {
		for i := uint(0); i < container.NamedChildCount(); i++ {
			child := container.NamedChild(i)
			if child == nil {
				continue
			}
			kind := child.Kind()
			switch {
			case lang.Contains(e.spec.TypeNodeTypes, kind):
				nested = append(nested, child)
			case lang.Contains(e.spec.FunctionNodeTypes, kind):
				funcs = append(funcs, child)
			case lang.Contains(e.spec.FieldNodeTypes, kind):
				fields = append(fields, child)
			case memberContainers[kind] || lang.Contains(e.spec.BodyNodeTypes, kind):
				collect(child)
			}
		}
	}
	if body := parser.FirstChildOfKind(n, e.spec.BodyNodeTypes...); body != nil {
		collect(body)
	}

	for _, f := range fields {
		e.emitFields(f, fqn)
	}
	for _, fn := range funcs {
		e.emitFunction(fn, fqn)
	}
	for _, t := range nested {
		e.emitType(t, fqn)
	}
}

func (e *extractor) emitFields(n *tree_sitter.Node, owner string) {
	var fields []fieldDecl
	if e.lang == lang.Java {
		fields = e.javaFields(n)
	} else if f, ok := e.kotlinProperty(n); ok {
		fields = []fieldDecl{f}
	}
	text := e.text(n)
	doc := docBefore(e.lines, parser.StartLine(n))
	for _, f := range fields {
		e.decls = append(e.decls, domain.RawField{
			Lang:        e.lang,
			FilePath:    e.path,
			PkgFQN:      e.pkg,
			OwnerFQN:    owner,
			Name:        f.name,
			TypeRepr:    f.typ,
			Annotations: f.annotations,
			Span:        e.span(n),
			Text:        text,
			Doc:         doc,
		})
	}
}

// javaFields reads one field_declaration, which may declare several variables.
func (e *extractor) javaFields(n *tree_sitter.Node) []fieldDecl {
	anns, _ := e.decorations(n)
	short, _ := annotationNames(anns)
	typ := e.cleanText(n.ChildByFieldName("type"))

	var out []fieldDecl
	for _, d := range parser.ChildrenOfKind(n, "variable_declarator") {
		name := d.ChildByFieldName("name")
		if name == nil {
			continue
		}
		t := typ
		if dims := d.ChildByFieldName("dimensions"); dims != nil {
			t += collapseSpace(e.text(dims))
		}
		out = append(out, fieldDecl{name: e.text(name), typ: t, annotations: short, node: d})
	}
	return out
}

// funcBody finds the body node of a function declaration.
func (e *extractor) funcBody(n *tree_sitter.Node) *tree_sitter.Node {
	if b := n.ChildByFieldName("body"); b != nil {
		return b
	}
	return parser.FirstChildOfKind(n, "function_body", "block", "constructor_body")
}

func (e *extractor) emitFunction(n *tree_sitter.Node, owner string) {
	var h funcHeader
	if e.lang == lang.Java {
		h = e.javaFuncHeader(n)
	} else {
		h = e.kotlinFuncHeader(n)
	}
	if h.name == "" {
		return
	}

	body := e.funcBody(n)
	headerEnd := n.EndByte()
	var usages []domain.RawUsage
	var locals map[string]string
	throws := append([]string(nil), h.throws...)
	if body != nil {
		headerEnd = body.StartByte()
		usages = e.collectUsages(body)
		locals = e.collectLocals(body)
		throws = appendUnique(throws, e.collectThrows(body)...)
	}
	for i, p := range h.paramNames {
		if i < len(h.paramTypes) && h.paramTypes[i] != "" {
			if locals == nil {
				locals = map[string]string{}
			}
			locals[p] = stripGenerics(h.paramTypes[i])
		}
	}

	short, texts := annotationNames(h.annotations)
	signature := strings.TrimRight(e.cleanRange(n, n.StartByte(), headerEnd), "=; ")

	e.decls = append(e.decls, domain.RawFunction{
		Lang:            e.lang,
		FilePath:        e.path,
		PkgFQN:          e.pkg,
		OwnerFQN:        owner,
		Name:            h.name,
		Signature:       signature,
		ParamNames:      h.paramNames,
		ParamTypes:      h.paramTypes,
		ReturnType:      h.returnType,
		Annotations:     short,
		AnnotationTexts: texts,
		Usages:          usages,
		Locals:          locals,
		Throws:          throws,
		Span:            e.span(n),
		Text:            e.text(n),
		Doc:             docBefore(e.lines, parser.StartLine(n)),
	})
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
