package graph

// TypeFQN is owner.Simple for nested types, else pkg.Simple, else Simple.
func TypeFQN(pkg, owner, simple string) string {
	switch {
	case owner != "":
		return owner + "." + simple
	case pkg != "":
		return pkg + "." + simple
	default:
		return simple
	}
}

// FunctionFQN is owner.name, else pkg.name, else name.
func FunctionFQN(owner, pkg, name string) string {
	return TypeFQN(pkg, owner, name)
}

// FieldFQN is owner.name, else pkg.name, else name.
func FieldFQN(owner, pkg, name string) string {
	return TypeFQN(pkg, owner, name)
}

// lastSegment returns the text after the final dot.
func lastSegment(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[i+1:]
		}
	}
	return fqn
}
