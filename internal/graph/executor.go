package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/nodebuild"
	"github.com/DeusData/docgraph/internal/planner"
)

// NodeBuilder is the node writer the handlers use. *nodebuild.Builder satisfies it.
type NodeBuilder interface {
	Upsert(ctx context.Context, in nodebuild.Input) (*domain.Node, error)
}

// Executor applies planned commands for one application against one State.
type Executor struct {
	appID    int64
	state    *State
	builder  NodeBuilder
	refiners RefinerChain
}

// NewExecutor creates an executor writing nodes for appID.
func NewExecutor(appID int64, state *State, builder NodeBuilder, refiners RefinerChain) *Executor {
	if refiners == nil {
		refiners = DefaultRefiners()
	}
	return &Executor{appID: appID, state: state, builder: builder, refiners: refiners}
}

// State returns the executor's build state.
func (e *Executor) State() *State { return e.state }

// Execute dispatches cmd to its handler.
func (e *Executor) Execute(ctx context.Context, cmd planner.Command) error {
	switch c := cmd.(type) {
	case planner.RememberFileUnit:
		e.state.RememberFile(c.Unit)
		return nil
	case planner.EnsurePackage:
		_, err := e.ensurePackage(ctx, c)
		return err
	case planner.UpsertType:
		return e.upsertType(ctx, c)
	case planner.UpsertFunction:
		return e.upsertFunction(ctx, c)
	case planner.UpsertField:
		return e.upsertField(ctx, c)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

func (e *Executor) ensurePackage(ctx context.Context, c planner.EnsurePackage) (*domain.Node, error) {
	return e.state.GetOrPutPackage(c.PkgFQN, func() (*domain.Node, error) {
		return e.builder.Upsert(ctx, nodebuild.Input{
			AppID:       e.appID,
			FQN:         c.PkgFQN,
			Kind:        domain.KindPackage,
			Name:        lastSegment(c.PkgFQN),
			PackageName: c.PkgFQN,
			Lang:        c.Lang,
			Meta: map[string]any{
				domain.MetaSource: domain.SourcePackage,
				domain.MetaPkgFQN: c.PkgFQN,
			},
		})
	})
}

func (e *Executor) packageFor(file, declared string) string {
	if declared != "" {
		return declared
	}
	return e.state.FilePackage(file)
}

func (e *Executor) upsertType(ctx context.Context, c planner.UpsertType) error {
	r := c.Raw
	pkg := e.packageFor(r.FilePath, r.PkgFQN)
	fqn := TypeFQN(pkg, r.OwnerFQN, r.SimpleName)

	parent := e.state.Package(pkg)
	if r.OwnerFQN != "" {
		if owner := e.state.Type(r.OwnerFQN); owner != nil {
			parent = owner
		}
	}
	rctx := RefineContext{Lang: r.Lang, Imports: e.state.FileImports(r.FilePath)}
	kind := e.refiners.ForType(c.BaseKind, &r, rctx)

	n, err := e.builder.Upsert(ctx, nodebuild.Input{
		AppID:       e.appID,
		FQN:         fqn,
		Kind:        kind,
		Name:        r.SimpleName,
		PackageName: pkg,
		Parent:      parent,
		Lang:        r.Lang,
		FilePath:    r.FilePath,
		Span:        r.Span,
		Signature:   declarationHeader(r.Text),
		SourceCode:  r.Text,
		DocComment:  r.Doc,
		Meta: map[string]any{
			domain.MetaSource:      domain.SourceType,
			domain.MetaPkgFQN:      pkg,
			domain.MetaOwnerFQN:    r.OwnerFQN,
			domain.MetaDeclKind:    r.KindRepr,
			domain.MetaSupertypes:  r.Supertypes,
			domain.MetaImports:     e.state.FileImports(r.FilePath),
			domain.MetaAnnotations: r.Annotations,
			domain.MetaModifiers:   r.Modifiers,
			domain.MetaKDoc:        kdoc(r.Doc),
			domain.MetaAPIMetadata: TypeAPIMetadata(&r),
		},
	})
	if err != nil {
		return err
	}
	e.state.PutType(fqn, n, r)
	return nil
}

func (e *Executor) upsertFunction(ctx context.Context, c planner.UpsertFunction) error {
	r := c.Raw
	pkg := e.packageFor(r.FilePath, r.PkgFQN)
	fqn := FunctionFQN(r.OwnerFQN, pkg, r.Name)

	var parent *domain.Node
	var owner *domain.RawType
	if r.OwnerFQN != "" {
		parent = e.state.Type(r.OwnerFQN)
		if raw, ok := e.state.RawType(r.OwnerFQN); ok {
			owner = &raw
		}
	}
	if parent == nil {
		parent = e.state.Package(pkg)
	}

	sig := r.Signature
	if sig == "" {
		sig = r.Name + "(" + strings.Join(r.ParamNames, ",") + ")"
	}
	rctx := RefineContext{Lang: r.Lang, Imports: e.state.FileImports(r.FilePath)}
	kind := e.refiners.ForFunction(domain.KindMethod, &r, rctx)

	n, err := e.builder.Upsert(ctx, nodebuild.Input{
		AppID:       e.appID,
		FQN:         fqn,
		Kind:        kind,
		Name:        r.Name,
		PackageName: pkg,
		Parent:      parent,
		Lang:        r.Lang,
		FilePath:    r.FilePath,
		Span:        r.Span,
		Signature:   sig,
		SourceCode:  r.Text,
		DocComment:  r.Doc,
		Meta: map[string]any{
			domain.MetaSource:      domain.SourceFunction,
			domain.MetaPkgFQN:      pkg,
			domain.MetaOwnerFQN:    r.OwnerFQN,
			domain.MetaParams:      r.ParamNames,
			domain.MetaParamTypes:  r.ParamTypes,
			domain.MetaReturnType:  r.ReturnType,
			domain.MetaRawUsages:   domain.UsageToMeta(r.Usages),
			domain.MetaLocals:      r.Locals,
			domain.MetaAnnotations: r.Annotations,
			domain.MetaImports:     e.state.FileImports(r.FilePath),
			domain.MetaThrowsTypes: r.Throws,
			domain.MetaKDoc:        kdoc(r.Doc),
			domain.MetaAPIMetadata: FunctionAPIMetadata(&r, owner),
		},
	})
	if err != nil {
		return err
	}
	e.state.PutFunction(fqn, n)
	return nil
}

func (e *Executor) upsertField(ctx context.Context, c planner.UpsertField) error {
	r := c.Raw
	pkg := e.packageFor(r.FilePath, r.PkgFQN)
	fqn := FieldFQN(r.OwnerFQN, pkg, r.Name)

	var parent *domain.Node
	if r.OwnerFQN != "" {
		parent = e.state.Type(r.OwnerFQN)
	}
	if parent == nil {
		parent = e.state.Package(pkg)
	}
	rctx := RefineContext{Lang: r.Lang, Imports: e.state.FileImports(r.FilePath)}

	_, err := e.builder.Upsert(ctx, nodebuild.Input{
		AppID:       e.appID,
		FQN:         fqn,
		Kind:        e.refiners.ForField(domain.KindField, &r, rctx),
		Name:        r.Name,
		PackageName: pkg,
		Parent:      parent,
		Lang:        r.Lang,
		FilePath:    r.FilePath,
		Span:        r.Span,
		Signature:   declarationHeader(r.Text),
		SourceCode:  r.Text,
		DocComment:  r.Doc,
		Meta: map[string]any{
			domain.MetaSource:      domain.SourceField,
			domain.MetaPkgFQN:      pkg,
			domain.MetaOwnerFQN:    r.OwnerFQN,
			domain.MetaType:        r.TypeRepr,
			domain.MetaAnnotations: r.Annotations,
			domain.MetaKDoc:        kdoc(r.Doc),
		},
	})
	return err
}

// declarationHeader is the declaration text before its body, on one line.
func declarationHeader(text string) string {
	if i := strings.IndexByte(text, '{'); i >= 0 {
		text = text[:i]
	}
	header := strings.Join(strings.Fields(text), " ")
	if len(header) > 512 {
		header = header[:512]
	}
	return header
}

func kdoc(doc string) map[string]any {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	summary := doc
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		summary = doc[:i]
	}
	return map[string]any{"summary": strings.TrimSpace(summary)}
}
