package linker

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/library"
)

// Strategy names, used in logs, stats and edge evidence.
const (
	StrategyStructural  = "structural"
	StrategyInheritance = "inheritance"
	StrategySignature   = "signature"
	StrategyCall        = "call"
	StrategyThrows      = "throws"
	StrategyAnnotation  = "annotation"
	StrategyIntegration = "integration"
)

type proposal struct {
	src, dst *domain.Node
	kind     domain.EdgeKind
	strategy string
}

type libProposal struct {
	src  *domain.Node
	lib  *domain.LibraryNode
	kind domain.EdgeKind
}

// nodeResult collects everything one node contributes to a link pass.
type nodeResult struct {
	edges     []proposal
	libEdges  []libProposal
	libraries []*domain.LibraryNode
	failed    []string
}

func (r *nodeResult) add(strategy string, src, dst *domain.Node, kinds ...domain.EdgeKind) {
	if src == nil || dst == nil {
		return
	}
	for _, k := range kinds {
		r.edges = append(r.edges, proposal{src: src, dst: dst, kind: k, strategy: strategy})
	}
}

// nodeContext is the resolution scope of one node.
type nodeContext struct {
	node    *domain.Node
	owner   *domain.Node
	imports []string
	pkg     string
}

func (l *run) contextFor(n *domain.Node) *nodeContext {
	nc := &nodeContext{node: n, pkg: n.PackageName, imports: n.MetaStrings(domain.MetaImports)}
	if nc.pkg == "" {
		nc.pkg = n.MetaString(domain.MetaPkgFQN)
	}
	if ownerFQN := n.MetaString(domain.MetaOwnerFQN); ownerFQN != "" {
		nc.owner = l.index.Get(ownerFQN)
	}
	if len(nc.imports) == 0 && nc.owner != nil {
		nc.imports = nc.owner.MetaStrings(domain.MetaImports)
	}
	return nc
}

func (nc *nodeContext) resolve(x *NodeIndex, ref string) *domain.Node {
	return x.ResolveType(ref, nc.imports, nc.pkg)
}

type strategyFunc func(ctx context.Context, l *run, nc *nodeContext, out *nodeResult)

type strategy struct {
	name string
	fn   strategyFunc
}

// strategies run in this order for every node. Integration is handled
// separately because it depends on the call strategy succeeding.
var strategies = []strategy{
	{StrategyStructural, linkStructural},
	{StrategyInheritance, linkInheritance},
	{StrategySignature, linkSignature},
	{StrategyCall, linkCalls},
	{StrategyThrows, linkThrows},
	{StrategyAnnotation, linkAnnotations},
}

func linkStructural(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	n := nc.node
	if n.Kind == domain.KindPackage {
		return
	}
	if nc.owner != nil {
		out.add(StrategyStructural, nc.owner, n, domain.EdgeContains)
		return
	}
	if n.MetaString(domain.MetaOwnerFQN) != "" || n.PackageName == "" {
		return
	}
	if pkg := l.index.Get(n.PackageName); pkg != nil && pkg.Kind == domain.KindPackage {
		out.add(StrategyStructural, pkg, n, domain.EdgeContains)
	}
}

func linkInheritance(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	if !isTypeNode(nc.node) {
		return
	}
	for _, raw := range nc.node.MetaStrings(domain.MetaSupertypes) {
		target := nc.resolve(l.index, raw)
		if target == nil || target == nc.node {
			continue
		}
		kind := domain.EdgeInherits
		if isInterface(target) {
			kind = domain.EdgeImplements
		}
		out.add(StrategyInheritance, nc.node, target, kind, domain.EdgeDependsOn)
	}
}

var typeToken = regexp.MustCompile(`:\s*([A-Za-z_][A-Za-z0-9_.]*)`)

// typeRefs splits a type expression into the names it mentions, generic
// arguments included: "Map<String, List<Order>>" -> Map, String, List, Order.
func typeRefs(expr string) []string {
	parts := strings.FieldsFunc(expr, func(r rune) bool {
		return r == '<' || r == '>' || r == ',' || r == '(' || r == ')' || r == '*' || unicode.IsSpace(r)
	})
	out := parts[:0]
	for _, p := range parts {
		if p == "in" || p == "out" || p == "->" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func linkSignature(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	n := nc.node
	var exprs []string
	switch {
	case isFunctionNode(n):
		exprs = append(exprs, n.MetaStrings(domain.MetaParamTypes)...)
		if rt := n.MetaString(domain.MetaReturnType); rt != "" {
			exprs = append(exprs, rt)
		}
		if len(exprs) == 0 && n.Signature != "" {
			for _, m := range typeToken.FindAllStringSubmatch(n.Signature, -1) {
				exprs = append(exprs, m[1])
			}
		}
		exprs = append(exprs, n.MetaStrings(domain.MetaThrowsTypes)...)
	case n.MetaString(domain.MetaSource) == domain.SourceField:
		if t := n.MetaString(domain.MetaType); t != "" {
			exprs = append(exprs, t)
		}
	default:
		return
	}

	src := nc.owner
	if src == nil {
		src = n
	}
	seen := map[*domain.Node]bool{}
	for _, e := range exprs {
		for _, ref := range typeRefs(e) {
			target := nc.resolve(l.index, ref)
			if target == nil || target == src || seen[target] {
				continue
			}
			seen[target] = true
			out.add(StrategySignature, src, target, domain.EdgeDependsOn)
		}
	}
}

func linkCalls(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	n := nc.node
	if !isFunctionNode(n) {
		return
	}
	for _, u := range domain.UsagesFromMeta(n.Meta[domain.MetaRawUsages]) {
		var target *domain.Node
		switch u.Kind {
		case domain.UsageSimple:
			target = l.resolveSimpleCall(nc, u)
		case domain.UsageDot:
			if !u.IsCall {
				continue
			}
			if recv, ok := l.receiverType(nc, u.Receiver); ok {
				if t := l.index.Get(recv + "." + u.Name); isFunctionNode(t) {
					target = t
				}
			}
		}
		if target != nil && target != n {
			out.add(StrategyCall, n, target, domain.EdgeCallsCode)
		}
	}
}

func (l *run) resolveSimpleCall(nc *nodeContext, u domain.RawUsage) *domain.Node {
	if nc.owner != nil {
		if t := l.index.Get(nc.owner.FQN + "." + u.Name); isFunctionNode(t) {
			return t
		}
	}
	if !u.IsCall {
		return nil
	}
	if t := l.index.importedFunction(u.Name, nc.imports); t != nil {
		return t
	}
	if t := nc.resolve(l.index, u.Name); t != nil {
		return t
	}
	if nc.pkg != "" {
		if t := l.index.Get(nc.pkg + "." + u.Name); isFunctionNode(t) {
			return t
		}
	}
	return nil
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// receiverType returns the FQN of the type a call receiver denotes. The
// name may belong to a library type the application does not declare.
//
// Order: a type name, a local or parameter, a field of the owner, this,
// and finally the owner itself.
func (l *run) receiverType(nc *nodeContext, receiver string) (string, bool) {
	if receiver == "" || strings.Contains(receiver, "(") {
		return "", false
	}
	if startsUpper(receiver) || (strings.Contains(receiver, ".") && startsUpper(simpleOf(receiver))) {
		if fqn, ok := l.index.resolveTypeName(receiver, nc.imports, nc.pkg); ok {
			return fqn, true
		}
		return "", false
	}
	if t, ok := nc.node.MetaStringMap(domain.MetaLocals)[receiver]; ok && t != "" {
		return l.index.resolveTypeName(t, nc.imports, nc.pkg)
	}

	field := receiver
	if rest, ok := strings.CutPrefix(receiver, "this."); ok {
		field = rest
	}
	if nc.owner != nil {
		if receiver == "this" {
			return nc.owner.FQN, true
		}
		if f := l.index.Get(nc.owner.FQN + "." + field); f != nil && f.MetaString(domain.MetaSource) == domain.SourceField {
			if t := f.MetaString(domain.MetaType); t != "" {
				return l.index.resolveTypeName(t, nc.imports, nc.pkg)
			}
		}
		return nc.owner.FQN, true
	}
	return "", false
}

func linkThrows(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	if !isFunctionNode(nc.node) {
		return
	}
	for _, t := range nc.node.MetaStrings(domain.MetaThrowsTypes) {
		out.add(StrategyThrows, nc.node, nc.resolve(l.index, t), domain.EdgeThrows)
	}
}

func linkAnnotations(_ context.Context, l *run, nc *nodeContext, out *nodeResult) {
	if nc.node.Kind == domain.KindPackage {
		return
	}
	for _, a := range nc.node.MetaStrings(domain.MetaAnnotations) {
		t := nc.resolve(l.index, strings.TrimPrefix(a, "@"))
		if t == nil || t == nc.node {
			continue
		}
		out.add(StrategyAnnotation, nc.node, t, domain.EdgeAnnotatedWith, domain.EdgeDependsOn)
	}
}

// libraryMethod finds the library method a call usage lands on.
func (l *run) libraryMethod(nc *nodeContext, u domain.RawUsage) *domain.LibraryNode {
	switch u.Kind {
	case domain.UsageSimple:
		if nc.owner != nil {
			if m := l.libs.FindByMethodFQN(nc.owner.FQN + "." + u.Name); m != nil {
				return m
			}
		}
		for _, imp := range nc.imports {
			if strings.HasSuffix(imp, "."+u.Name) {
				if m := l.libs.FindByMethodFQN(imp); m != nil {
					return m
				}
			}
		}
		if strings.Contains(u.Name, ".") {
			return l.libs.FindByMethodFQN(u.Name)
		}
	case domain.UsageDot:
		recv, ok := l.receiverType(nc, u.Receiver)
		if !ok {
			return nil
		}
		if m := l.libs.FindByMethodFQN(recv + "." + u.Name); m != nil {
			return m
		}
		return l.libs.FindByClassAndMethod(recv, u.Name)
	}
	return nil
}

func linkIntegration(ctx context.Context, l *run, nc *nodeContext, out *nodeResult) {
	n := nc.node
	if l.libs == nil || !isFunctionNode(n) {
		return
	}
	seen := map[string]bool{}
	for _, u := range domain.UsagesFromMeta(n.Meta[domain.MetaRawUsages]) {
		if !u.IsCall {
			continue
		}
		lib := l.libraryMethod(nc, u)
		if lib == nil || seen[lib.FQN] {
			continue
		}
		seen[lib.FQN] = true
		out.libraries = append(out.libraries, lib)
		out.libEdges = append(out.libEdges, libProposal{src: n, lib: lib, kind: domain.EdgeCallsCode})

		for _, p := range library.IntegrationPoints(lib) {
			l.linkIntegrationPoint(ctx, n, lib, p, out)
		}
	}
}

func (l *run) linkIntegrationPoint(ctx context.Context, src *domain.Node, lib *domain.LibraryNode, p domain.IntegrationPoint, out *nodeResult) {
	link := func(dst *domain.Node, kind domain.EdgeKind) {
		out.add(StrategyIntegration, src, dst, kind)
		out.libEdges = append(out.libEdges, libProposal{src: src, lib: lib, kind: kind})
	}
	switch p := p.(type) {
	case domain.HTTPEndpoint:
		endpoint, _ := l.virtual.GetOrCreateEndpoint(ctx, orUnknown(p.URL), p.HTTPMethod)
		if endpoint == nil {
			return
		}
		link(endpoint, domain.EdgeCallsHTTP)
		if p.HasRetry {
			link(endpoint, domain.EdgeRetriesTo)
		}
		if p.HasTimeout {
			link(endpoint, domain.EdgeTimeoutsTo)
		}
		if p.HasCircuitBreaker {
			link(endpoint, domain.EdgeCircuitBreakerTo)
		}
	case domain.KafkaTopic:
		topic, _ := l.virtual.GetOrCreateTopic(ctx, orUnknown(p.Topic))
		if topic == nil {
			return
		}
		kind := domain.EdgeConsumes
		if p.Operation == domain.KafkaProduce {
			kind = domain.EdgeProduces
		}
		link(topic, kind)
	case domain.CamelRoute:
		endpoint, _ := l.virtual.GetOrCreateEndpoint(ctx, orUnknown(p.URI), "")
		if endpoint == nil {
			return
		}
		if p.EndpointType == "http" || p.EndpointType == "https" || strings.HasPrefix(p.URI, "http") {
			link(endpoint, domain.EdgeCallsHTTP)
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
