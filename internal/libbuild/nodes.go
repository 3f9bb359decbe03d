package libbuild

import (
	"sort"
	"strings"

	"github.com/DeusData/docgraph/internal/bytecode"
	"github.com/DeusData/docgraph/internal/domain"
)

// coroutineMarkers identify compiler-generated Kotlin coroutine classes.
var coroutineMarkers = []string{"$SuspendLambda", "$Continuation", "$WhenMappings", "$DefaultImpls"}

// pendingNode is a library node whose parent is known only by FQN until the
// parent has been persisted.
type pendingNode struct {
	node      *domain.LibraryNode
	parentFQN string
}

// extracted holds the nodes of one artifact: classes first, members after.
type extracted struct {
	classes []pendingNode
	members []pendingNode
}

func (e *extracted) len() int { return len(e.classes) + len(e.members) }

func classKind(c *bytecode.ClassFile) domain.NodeKind {
	switch c.Kind() {
	case "annotation":
		return domain.KindAnnotation
	case "interface":
		return domain.KindInterface
	case "enum":
		return domain.KindEnum
	case "record":
		return domain.KindRecord
	default:
		return domain.KindClass
	}
}

func splitFQN(fqn string) (pkg, name string) {
	i := strings.LastIndexByte(fqn, '.')
	if i < 0 {
		return "", fqn
	}
	return fqn[:i], fqn[i+1:]
}

func annotationNames(anns []bytecode.Annotation) []string {
	if len(anns) == 0 {
		return nil
	}
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = a.Name()
	}
	return out
}

func fqns(internal []string) []string {
	if len(internal) == 0 {
		return nil
	}
	out := make([]string, len(internal))
	for i, n := range internal {
		out[i] = bytecode.InternalToFQN(n)
	}
	return out
}

// putNonEmpty sets meta[key] unless v is an empty string, slice or false.
func putNonEmpty(meta map[string]any, key string, v any) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return
		}
	case []string:
		if len(t) == 0 {
			return
		}
	case bool:
		if !t {
			return
		}
	}
	meta[key] = v
}

// extract turns an analyzed artifact into library nodes. Overloads share a
// method FQN, so they become one node whose integration analysis is the
// union of the overloads' summaries.
func extract(an *bytecode.Analysis) *extracted {
	out := &extracted{}
	classes := make(map[string]bool, len(an.Classes))
	for _, c := range an.Classes {
		classes[c.ThisClass] = true
	}
	for _, c := range an.Classes {
		out.classes = append(out.classes, classNode(c, classes))
		out.members = append(out.members, fieldNodes(c)...)
		out.members = append(out.members, methodNodes(an, c)...)
	}
	// Outer classes before nested ones so parents get IDs first.
	sort.SliceStable(out.classes, func(i, j int) bool {
		return strings.Count(out.classes[i].node.FQN, "$") < strings.Count(out.classes[j].node.FQN, "$")
	})
	return out
}

func classNode(c *bytecode.ClassFile, inJar map[string]bool) pendingNode {
	fqn := c.FQN()
	pkg, name := splitFQN(fqn)
	meta := map[string]any{}
	putNonEmpty(meta, "annotations", annotationNames(c.Annotations))
	putNonEmpty(meta, "modifiers", bytecode.Modifiers(c.Access, false))
	if c.SuperClass != "" {
		meta["superClass"] = bytecode.InternalToFQN(c.SuperClass)
	}
	putNonEmpty(meta, "interfaces", fqns(c.Interfaces))
	putNonEmpty(meta, "signature", c.Signature)
	putNonEmpty(meta, "sourceFile", c.SourceFile)
	putNonEmpty(meta, "synthetic", c.Access&bytecode.AccSynthetic != 0)
	for _, m := range coroutineMarkers {
		if strings.Contains(c.ThisClass, m) {
			meta["synthetic_coroutine_class"] = true
			break
		}
	}

	var parent string
	switch {
	case c.EnclosingMethod != nil && inJar[c.EnclosingMethod.Class]:
		parent = c.EnclosingMethod.Class
	case strings.Contains(c.ThisClass, "$"):
		if outer := c.ThisClass[:strings.LastIndexByte(c.ThisClass, '$')]; inJar[outer] {
			parent = outer
		}
	}
	if parent != "" {
		parent = bytecode.InternalToFQN(parent)
	}
	return pendingNode{
		node: &domain.LibraryNode{
			FQN:         fqn,
			Name:        name,
			PackageName: pkg,
			Kind:        classKind(c),
			FilePath:    c.ThisClass + ".class",
			Signature:   c.Signature,
			Meta:        meta,
		},
		parentFQN: parent,
	}
}

func fieldNodes(c *bytecode.ClassFile) []pendingNode {
	owner := c.FQN()
	pkg, _ := splitFQN(owner)
	out := make([]pendingNode, 0, len(c.Fields))
	for _, f := range c.Fields {
		typ := bytecode.TypeName(f.Descriptor)
		meta := map[string]any{"descriptor": f.Descriptor, "type": typ}
		putNonEmpty(meta, "modifiers", bytecode.Modifiers(f.Access, false))
		putNonEmpty(meta, "annotations", annotationNames(f.Annotations))
		putNonEmpty(meta, "signature", f.Signature)
		putNonEmpty(meta, "synthetic", f.Access&bytecode.AccSynthetic != 0)
		out = append(out, pendingNode{
			node: &domain.LibraryNode{
				FQN:         owner + "." + f.Name,
				Name:        f.Name,
				PackageName: pkg,
				Kind:        domain.KindField,
				FilePath:    c.ThisClass + ".class",
				Signature:   typ,
				Meta:        meta,
			},
			parentFQN: owner,
		})
	}
	return out
}

// methodSignature renders "name(java.lang.String, int): void".
func methodSignature(name string, md bytecode.MethodDescriptor) string {
	params := make([]string, len(md.Params))
	for i, p := range md.Params {
		params[i] = bytecode.TypeName(p)
	}
	return name + "(" + strings.Join(params, ", ") + "): " + bytecode.TypeName(md.Return)
}

func isSuspend(md bytecode.MethodDescriptor) bool {
	n := len(md.Params)
	return n > 0 && md.Params[n-1] == "Lkotlin/coroutines/Continuation;" && md.Return == "Ljava/lang/Object;"
}

func methodNodes(an *bytecode.Analysis, c *bytecode.ClassFile) []pendingNode {
	owner := c.FQN()
	pkg, _ := splitFQN(owner)
	var out []pendingNode
	byName := map[string]*domain.LibraryNode{}
	summaries := map[string][]*bytecode.MethodSummary{}
	for _, m := range c.Methods {
		if m.Name == "<clinit>" {
			continue
		}
		id := bytecode.MethodID{Owner: c.ThisClass, Name: m.Name, Descriptor: m.Descriptor}
		if s := an.Summary(id); s != nil {
			summaries[m.Name] = append(summaries[m.Name], s)
		}
		if n, ok := byName[m.Name]; ok {
			n.Meta["descriptors"] = append(n.Meta["descriptors"].([]string), m.Descriptor)
			continue
		}

		meta := map[string]any{"descriptor": m.Descriptor, "descriptors": []string{m.Descriptor}}
		putNonEmpty(meta, "modifiers", bytecode.Modifiers(m.Access, true))
		putNonEmpty(meta, "annotations", annotationNames(m.Annotations))
		putNonEmpty(meta, "exceptions", fqns(m.Exceptions))
		putNonEmpty(meta, "signature", m.Signature)
		putNonEmpty(meta, "bridge", m.Access&bytecode.AccBridge != 0)
		putNonEmpty(meta, "synthetic", m.Access&bytecode.AccSynthetic != 0)
		putNonEmpty(meta, "synthetic_coroutine_helper", strings.Contains(m.Name, "$suspendImpl") || strings.HasSuffix(m.Name, "$default"))
		sig := m.Name + "()"
		if md, err := bytecode.ParseMethodDescriptor(m.Descriptor); err == nil {
			sig = methodSignature(m.Name, md)
			putNonEmpty(meta, "kotlin_suspend", isSuspend(md))
		}

		n := &domain.LibraryNode{
			FQN:         owner + "." + m.Name,
			Name:        m.Name,
			PackageName: pkg,
			Kind:        domain.KindMethod,
			FilePath:    c.ThisClass + ".class",
			Signature:   sig,
			Meta:        meta,
		}
		byName[m.Name] = n
		out = append(out, pendingNode{node: n, parentFQN: owner})
	}

	for name, sums := range summaries {
		if a := mergeSummaries(sums); !a.Empty() {
			byName[name].Meta[domain.MetaIntegrationAnalysis] = a.Meta()
		}
	}
	for _, p := range out {
		if ds := p.node.Meta["descriptors"].([]string); len(ds) == 1 {
			delete(p.node.Meta, "descriptors")
		}
	}
	return out
}

// mergeSummaries unions the points of overloads. The merged method is a
// parent client if any overload is one.
func mergeSummaries(sums []*bytecode.MethodSummary) domain.IntegrationAnalysis {
	sort.Slice(sums, func(i, j int) bool { return sums[i].Method.Descriptor < sums[j].Method.Descriptor })
	var points []domain.IntegrationPoint
	parent := false
	for _, s := range sums {
		points = append(points, s.Points()...)
		parent = parent || s.IsParentClient
	}
	return domain.NewIntegrationAnalysis(points, parent)
}
