package bytecode

import (
	"fmt"
	"strings"
)

// MethodDescriptor is a parsed method descriptor such as "(Ljava/lang/String;I)V".
// Types are kept in descriptor form.
type MethodDescriptor struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits a method descriptor into parameter and return types.
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	var md MethodDescriptor
	if !strings.HasPrefix(desc, "(") {
		return md, fmt.Errorf("bad method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldTypeLen(desc[i:])
		if err != nil {
			return md, fmt.Errorf("bad method descriptor %q: %w", desc, err)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return md, fmt.Errorf("bad method descriptor %q: missing ')'", desc)
	}
	md.Return = desc[i+1:]
	if md.Return == "" {
		return md, fmt.Errorf("bad method descriptor %q: missing return type", desc)
	}
	return md, nil
}

func fieldTypeLen(s string) (int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims >= len(s) {
		return 0, fmt.Errorf("truncated type %q", s)
	}
	switch s[dims] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return dims + 1, nil
	case 'L':
		end := strings.IndexByte(s[dims:], ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class type %q", s)
		}
		return dims + end + 1, nil
	}
	return 0, fmt.Errorf("unknown type %q", s)
}

var primitiveNames = map[byte]string{
	'B': "byte", 'C': "char", 'D': "double", 'F': "float",
	'I': "int", 'J': "long", 'S': "short", 'Z': "boolean", 'V': "void",
}

// TypeName renders a descriptor type as source: "[Ljava/lang/String;" -> "java.lang.String[]".
func TypeName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	base := desc[dims:]
	var name string
	switch {
	case strings.HasPrefix(base, "L"):
		name = InternalToFQN(strings.TrimSuffix(base[1:], ";"))
	case len(base) == 1:
		name = primitiveNames[base[0]]
	}
	if name == "" {
		name = base
	}
	return name + strings.Repeat("[]", dims)
}

// isClassType reports whether a descriptor type names the given internal class.
func isClassType(desc, internal string) bool {
	return desc == "L"+internal+";"
}
