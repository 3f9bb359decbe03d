package planner

import (
	"testing"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

func TestPlanFileUnit(t *testing.T) {
	cmds := Plan(domain.RawFileUnit{Lang: lang.Kotlin, FilePath: "A.kt", PkgFQN: "com.a"})
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if _, ok := cmds[0].(RememberFileUnit); !ok {
		t.Errorf("first command = %T, want RememberFileUnit", cmds[0])
	}
	if ep, ok := cmds[1].(EnsurePackage); !ok || ep.PkgFQN != "com.a" {
		t.Errorf("second command = %#v, want EnsurePackage(com.a)", cmds[1])
	}

	if cmds := Plan(domain.RawFileUnit{FilePath: "B.kt"}); len(cmds) != 1 {
		t.Errorf("file without package should plan 1 command, got %d", len(cmds))
	}
}

func TestPlanDeclarations(t *testing.T) {
	tests := []struct {
		name string
		decl domain.RawDecl
		want int
	}{
		{"type", domain.RawType{PkgFQN: "p", SimpleName: "A", KindRepr: "class"}, 2},
		{"function", domain.RawFunction{PkgFQN: "p", Name: "f"}, 2},
		{"field", domain.RawField{PkgFQN: "p", Name: "x"}, 2},
		{"field without package", domain.RawField{Name: "x"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := Plan(tt.decl)
			if len(cmds) != tt.want {
				t.Fatalf("got %d commands, want %d", len(cmds), tt.want)
			}
			if tt.want == 2 {
				if _, ok := cmds[0].(EnsurePackage); !ok {
					t.Errorf("first command = %T, want EnsurePackage", cmds[0])
				}
			}
		})
	}
}

func TestBaseKind(t *testing.T) {
	tests := map[string]domain.NodeKind{
		"interface":  domain.KindInterface,
		"enum":       domain.KindEnum,
		"record":     domain.KindRecord,
		"data class": domain.KindRecord,
		"annotation": domain.KindAnnotation,
		"object":     domain.KindClass,
		"class":      domain.KindClass,
		"":           domain.KindClass,
	}
	for repr, want := range tests {
		if got := BaseKind(repr); got != want {
			t.Errorf("BaseKind(%q) = %s, want %s", repr, got, want)
		}
	}
}

func TestPlanUpsertTypeCarriesKind(t *testing.T) {
	cmds := Plan(domain.RawType{SimpleName: "Repo", KindRepr: "interface"})
	ut, ok := cmds[0].(UpsertType)
	if !ok {
		t.Fatalf("command = %T, want UpsertType", cmds[0])
	}
	if ut.BaseKind != domain.KindInterface {
		t.Errorf("BaseKind = %s, want INTERFACE", ut.BaseKind)
	}
}
