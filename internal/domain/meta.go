package domain

// Node meta keys.
const (
	MetaSource             = "source"
	MetaPkgFQN             = "pkgFqn"
	MetaOwnerFQN           = "ownerFqn"
	MetaParams             = "params"
	MetaParamTypes         = "paramTypes"
	MetaReturnType         = "returnType"
	MetaRawUsages          = "rawUsages"
	MetaLocals             = "locals"
	MetaImports            = "imports"
	MetaAnnotations        = "annotations"
	MetaSupertypes         = "supertypesSimple"
	MetaThrowsTypes        = "throwsTypes"
	MetaKDoc               = "kdoc"
	MetaAPIMetadata        = "apiMetadata"
	MetaType               = "type"
	MetaModifiers          = "modifiers"
	MetaDeclKind           = "declKind"
	MetaLibraryIntegration = "libraryIntegration"

	MetaURL        = "url"
	MetaHTTPMethod = "httpMethod"
	MetaTopic      = "topic"
)

// Values of the "source" meta key.
const (
	SourcePackage         = "package"
	SourceType            = "type"
	SourceFunction        = "function"
	SourceField           = "field"
	SourceLibraryAnalysis = "library_analysis"
	HTTPMethodUnknown     = "UNKNOWN"
)
