// Package planner maps raw declarations to the commands that materialize
// them. Planning is pure: it never touches graph state or storage.
package planner

import (
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

// Command is one unit of graph mutation produced by Plan.
type Command interface {
	command()
}

// RememberFileUnit records a file's package and imports for later declarations.
type RememberFileUnit struct {
	Unit domain.RawFileUnit
}

// EnsurePackage creates the package node if it does not exist yet.
type EnsurePackage struct {
	PkgFQN   string
	FilePath string
	Lang     lang.Language
}

// UpsertType creates or updates a type node with the given unrefined kind.
type UpsertType struct {
	Raw      domain.RawType
	BaseKind domain.NodeKind
}

// UpsertFunction creates or updates a function or method node.
type UpsertFunction struct {
	Raw domain.RawFunction
}

// UpsertField creates or updates a field or property node.
type UpsertField struct {
	Raw domain.RawField
}

func (RememberFileUnit) command() {}
func (EnsurePackage) command()    {}
func (UpsertType) command()       {}
func (UpsertFunction) command()   {}
func (UpsertField) command()      {}

// Plan returns the commands for one declaration, in execution order.
func Plan(decl domain.RawDecl) []Command {
	switch d := decl.(type) {
	case domain.RawFileUnit:
		return withPackage(d.PkgFQN, d.FilePath, d.Lang, RememberFileUnit{Unit: d}, true)
	case domain.RawType:
		return withPackage(d.PkgFQN, d.FilePath, d.Lang, UpsertType{Raw: d, BaseKind: BaseKind(d.KindRepr)}, false)
	case domain.RawFunction:
		return withPackage(d.PkgFQN, d.FilePath, d.Lang, UpsertFunction{Raw: d}, false)
	case domain.RawField:
		return withPackage(d.PkgFQN, d.FilePath, d.Lang, UpsertField{Raw: d}, false)
	}
	return nil
}

// withPackage places EnsurePackage after cmd for file units and before it otherwise.
func withPackage(pkg, file string, l lang.Language, cmd Command, after bool) []Command {
	if strings.TrimSpace(pkg) == "" {
		return []Command{cmd}
	}
	ensure := EnsurePackage{PkgFQN: pkg, FilePath: file, Lang: l}
	if after {
		return []Command{cmd, ensure}
	}
	return []Command{ensure, cmd}
}

// BaseKind maps a declaration keyword to its unrefined node kind.
func BaseKind(kindRepr string) domain.NodeKind {
	switch strings.ToLower(strings.TrimSpace(kindRepr)) {
	case "interface":
		return domain.KindInterface
	case "enum":
		return domain.KindEnum
	case "record", "data class":
		return domain.KindRecord
	case "annotation":
		return domain.KindAnnotation
	default:
		return domain.KindClass
	}
}
