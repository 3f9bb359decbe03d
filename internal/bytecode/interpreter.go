package bytecode

import (
	"regexp"
	"strings"
)

// unknownPart is how a string fragment the interpreter cannot recover is
// rendered inside an otherwise known string.
const unknownPart = "{}"

// maxStack bounds the abstract stack; straight-line interpretation across
// branch targets can leave stale entries behind.
const maxStack = 256

var formatVerb = regexp.MustCompile(`%[-#+ 0,(]*[0-9]*(?:\.[0-9]+)?[sdfxX]`)

type valueKind int

const (
	vUnknown valueKind = iota
	vString
	vBuilder
	vObject
	vList
	vStatic
)

type part struct {
	text  string
	known bool
}

// value is an abstract stack or local variable value. Objects are shared by
// pointer so that dup, store and load keep referring to the same instance.
type value struct {
	kind   valueKind
	typ    string // internal class name for objects, owner for static fields
	text   string // string constant, URL or topic carried by an object, static field name
	known  bool   // text holds recovered information (objects)
	parts  []part
	items  []*value
	method string // HTTP method recorded on request builders
	site   int    // index of a site this value produced, or -1
	wide   bool   // long or double
}

var (
	unknown     = &value{kind: vUnknown, site: -1}
	unknownWide = &value{kind: vUnknown, site: -1, wide: true}
)

// opaque returns the unknown value of a descriptor type.
func opaque(desc string) *value {
	if desc == "J" || desc == "D" {
		return unknownWide
	}
	return unknown
}

func stringValue(s string) *value { return &value{kind: vString, text: s, known: true, site: -1} }

func objectValue(typ string) *value { return &value{kind: vObject, typ: typ, site: -1} }

// render returns the string this value denotes and whether any of it is known.
func (v *value) render() (string, bool) {
	switch v.kind {
	case vString:
		return v.text, v.known
	case vBuilder:
		var sb strings.Builder
		known := false
		for _, p := range v.parts {
			if p.known {
				sb.WriteString(p.text)
				known = true
			} else {
				sb.WriteString(unknownPart)
			}
		}
		return sb.String(), known
	case vObject:
		if v.known {
			return v.text, true
		}
	}
	return unknownPart, false
}

// str returns the rendered string, or "" when nothing is known.
func (v *value) str() string {
	s, ok := v.render()
	if !ok {
		return ""
	}
	return s
}

func (v *value) appendValue(o *value) {
	s, ok := o.render()
	v.parts = append(v.parts, part{text: s, known: ok})
}

func concat(a, b *value) *value {
	sa, oka := a.render()
	sb, okb := b.render()
	if !oka && !okb {
		return &value{kind: vString, text: unknownPart + unknownPart, site: -1}
	}
	return stringValue(sa + sb)
}

// frame is the abstract machine state of one method.
type frame struct {
	stack  []*value
	locals map[int]*value
}

func newFrame() *frame { return &frame{locals: map[int]*value{}} }

func (f *frame) push(v *value) {
	if v == nil {
		v = unknown
	}
	f.stack = append(f.stack, v)
	if len(f.stack) > maxStack {
		f.stack = f.stack[len(f.stack)-maxStack:]
	}
}

func (f *frame) pop() *value {
	if len(f.stack) == 0 {
		return unknown
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []*value {
	out := make([]*value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = f.pop()
	}
	return out
}

func (f *frame) drop(n int) {
	for ; n > 0; n-- {
		f.pop()
	}
}

func (f *frame) reset() { f.stack = f.stack[:0] }

// call is one invoke instruction with its abstract operands.
type call struct {
	ins    Instruction
	ref    MemberRef
	desc   MethodDescriptor
	static bool
	recv   *value
	args   []*value
}

func (c *call) arg(i int) *value {
	if i < 0 || i >= len(c.args) {
		return unknown
	}
	return c.args[i]
}

func (c *call) is(owner, name string) bool { return c.ref.Owner == owner && c.ref.Name == name }

const (
	stringBuilder = "java/lang/StringBuilder"
	stringBuffer  = "java/lang/StringBuffer"
	javaString    = "java/lang/String"
)

// model applies the string semantics of well-known JDK and framework methods.
// It returns the call's result value, or nil when the result is unknown.
func model(c *call) *value {
	owner, name := c.ref.Owner, c.ref.Name
	switch owner {
	case stringBuilder, stringBuffer:
		b := c.recv
		if b.kind != vBuilder {
			return nil
		}
		switch name {
		case "<init>":
			if len(c.args) == 1 && c.desc.Params[0] != "I" {
				b.appendValue(c.arg(0))
			}
			return nil
		case "append":
			b.appendValue(c.arg(0))
			return b
		case "toString":
			s, ok := b.render()
			if !ok {
				return &value{kind: vString, text: s, site: -1}
			}
			return stringValue(s)
		}
		return nil
	case javaString:
		switch name {
		case "concat":
			return concat(c.recv, c.arg(0))
		case "valueOf":
			if v := c.arg(0); v.kind == vString {
				return v
			}
			return &value{kind: vString, text: unknownPart, site: -1}
		case "format":
			if f := c.arg(0); f.kind == vString {
				return stringValue(formatVerb.ReplaceAllString(f.text, unknownPart))
			}
		case "trim", "intern", "toString", "strip":
			if c.recv != nil && c.recv.kind == vString {
				return c.recv
			}
		}
		return nil
	case "java/net/URI":
		switch name {
		case "create":
			return withText(objectValue(owner), c.arg(0))
		case "<init>":
			if len(c.args) == 1 {
				setText(c.recv, c.arg(0))
			}
		case "toString", "toASCIIString":
			if c.recv.known {
				return stringValue(c.recv.text)
			}
		}
		return nil
	case "java/net/URL":
		switch name {
		case "<init>":
			if len(c.args) == 1 {
				setText(c.recv, c.arg(0))
			}
		case "toURI":
			return withText(objectValue("java/net/URI"), c.recv)
		case "toString", "toExternalForm":
			if c.recv.known {
				return stringValue(c.recv.text)
			}
		}
		return nil
	case "java/util/regex/Pattern":
		if name == "compile" {
			return withText(objectValue(owner), c.arg(0))
		}
		return nil
	case "java/util/Collections":
		if name == "singletonList" || name == "singleton" {
			return &value{kind: vList, items: []*value{c.arg(0)}, site: -1}
		}
		return nil
	case "java/util/List", "java/util/Set":
		if name == "of" {
			return listOf(c)
		}
		return nil
	case "java/util/Arrays":
		if name == "asList" {
			return listOf(c)
		}
		return nil
	case "org/springframework/web/util/UriComponentsBuilder":
		switch name {
		case "fromHttpUrl", "fromUriString", "fromPath":
			return withText(objectValue(owner), c.arg(0))
		case "path":
			if c.recv.kind == vObject {
				out := objectValue(owner)
				s := concat(c.recv, c.arg(0))
				out.text, out.known = s.text, true
				return out
			}
		case "toUriString", "build", "encode", "queryParam", "buildAndExpand":
			if c.recv.kind == vObject {
				return c.recv
			}
		}
		return nil
	case "org/springframework/web/util/UriComponents":
		if c.recv.kind == vObject && (name == "toUriString" || name == "toUri" || name == "encode" || name == "expand") {
			return c.recv
		}
		return nil
	case "org/apache/kafka/clients/producer/ProducerRecord":
		if name == "<init>" && len(c.args) > 0 {
			setText(c.recv, c.arg(0))
		}
		return nil
	}
	return nil
}

// listOf builds a list from the call's arguments; a single array argument
// (varargs) contributes its elements.
func listOf(c *call) *value {
	items := c.args
	if len(c.args) == 1 && c.arg(0).kind == vList {
		items = c.arg(0).items
	}
	return &value{kind: vList, items: append([]*value(nil), items...), site: -1}
}

func setText(obj, from *value) {
	if obj == nil || obj.kind != vObject {
		return
	}
	if s, ok := from.render(); ok {
		obj.text, obj.known = s, true
	}
}

func withText(obj, from *value) *value {
	setText(obj, from)
	return obj
}

// concatRecipe renders an invokedynamic makeConcatWithConstants call: \x01
// takes the next argument, \x02 the next bootstrap constant.
func concatRecipe(recipe string, args []*value, consts []string) *value {
	var sb strings.Builder
	known := false
	ai, ci := 0, 0
	for _, r := range recipe {
		switch r {
		case '\x01':
			v := unknown
			if ai < len(args) {
				v = args[ai]
			}
			ai++
			s, ok := v.render()
			sb.WriteString(s)
			known = known || ok
		case '\x02':
			if ci < len(consts) {
				sb.WriteString(consts[ci])
				known = true
			}
			ci++
		default:
			sb.WriteRune(r)
			known = true
		}
	}
	if !known {
		return &value{kind: vString, text: sb.String(), site: -1}
	}
	return stringValue(sb.String())
}
