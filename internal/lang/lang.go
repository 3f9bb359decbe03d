package lang

// Language represents a supported source language.
type Language string

const (
	Kotlin Language = "kotlin"
	Java   Language = "java"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Kotlin, Java}
}

// LanguageSpec defines the tree-sitter node types the walker looks for.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string
	// TypeNodeTypes are class-like declarations (class, interface, object, enum, record).
	TypeNodeTypes     []string
	FunctionNodeTypes []string
	FieldNodeTypes    []string
	// BodyNodeTypes are the member containers of a type declaration.
	BodyNodeTypes   []string
	ModuleNodeTypes []string
	// CallNodeTypes are call sites, including constructor invocations.
	CallNodeTypes []string
	// MemberAccessTypes are receiver-qualified expressions (a.b).
	MemberAccessTypes []string
	// ReferenceNodeTypes are member references (Foo::bar).
	ReferenceNodeTypes []string
	// ThrowNodeTypes are throw statements or expressions.
	ThrowNodeTypes []string
	// LocalVarNodeTypes declare variables inside a function body.
	LocalVarNodeTypes []string
	// ParamListNodeTypes hold a function's parameters.
	ParamListNodeTypes []string
	// SupertypeNodeTypes hold the supertype list of a type declaration.
	SupertypeNodeTypes []string
	ImportNodeTypes    []string
	PackageNodeTypes   []string
	// DecoratorNodeTypes lists annotation node kinds.
	DecoratorNodeTypes []string
	CommentNodeTypes   []string
	// LambdaNodeTypes are not descended into when collecting a function's locals.
	LambdaNodeTypes []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".kt").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// Contains reports whether kind is one of kinds.
func Contains(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
