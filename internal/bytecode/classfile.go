// Package bytecode reads JVM class files and finds the outbound integration
// calls (HTTP, Kafka, Camel) a library makes, rolled up per method along the
// library's own call graph.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Parse errors.
var (
	ErrNotClassFile = errors.New("not a class file")
	ErrTruncated    = errors.New("truncated class file")
	ErrBadConstant  = errors.New("bad constant pool entry")
)

const classMagic = 0xCAFEBABE

// Access flags.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSynchronized = 0x0020
	AccBridge       = 0x0040
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// Constant pool tags.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Constant is one constant pool entry. Which fields are set depends on Tag:
// Utf8 uses Text, numeric tags use Int or Float, reference tags use A and B.
type Constant struct {
	Tag     byte
	Text    string
	Int     int64
	Float   float64
	A, B    uint16
	RefKind byte
}

// ConstantPool is indexed from 1; slot 0 and the slot after a Long or
// Double are empty.
type ConstantPool []Constant

func (cp ConstantPool) get(i uint16, tags ...byte) (Constant, bool) {
	if int(i) <= 0 || int(i) >= len(cp) {
		return Constant{}, false
	}
	c := cp[i]
	for _, t := range tags {
		if c.Tag == t {
			return c, true
		}
	}
	return Constant{}, false
}

// UTF8 returns the text of a Utf8 entry.
func (cp ConstantPool) UTF8(i uint16) string {
	c, _ := cp.get(i, TagUtf8)
	return c.Text
}

// ClassName returns the internal name of a Class entry, e.g. "java/lang/String".
func (cp ConstantPool) ClassName(i uint16) string {
	c, ok := cp.get(i, TagClass)
	if !ok {
		return ""
	}
	return cp.UTF8(c.A)
}

// String returns the value of a String entry.
func (cp ConstantPool) String(i uint16) (string, bool) {
	c, ok := cp.get(i, TagString)
	if !ok {
		return "", false
	}
	return cp.UTF8(c.A), true
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (cp ConstantPool) NameAndType(i uint16) (string, string) {
	c, ok := cp.get(i, TagNameAndType)
	if !ok {
		return "", ""
	}
	return cp.UTF8(c.A), cp.UTF8(c.B)
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

// Member resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (cp ConstantPool) Member(i uint16) (MemberRef, bool) {
	c, ok := cp.get(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if !ok {
		return MemberRef{}, false
	}
	name, desc := cp.NameAndType(c.B)
	return MemberRef{
		Owner:      cp.ClassName(c.A),
		Name:       name,
		Descriptor: desc,
		Interface:  c.Tag == TagInterfaceMethodref,
	}, true
}

// MethodHandle resolves a MethodHandle entry to the member it refers to.
func (cp ConstantPool) MethodHandle(i uint16) (MemberRef, bool) {
	c, ok := cp.get(i, TagMethodHandle)
	if !ok {
		return MemberRef{}, false
	}
	return cp.Member(c.A)
}

// Annotation is a runtime annotation. Only its type is kept.
type Annotation struct {
	Type    string // descriptor, e.g. "Lorg/springframework/retry/annotation/Retryable;"
	Visible bool
}

// Name returns the annotation's class name with dots.
func (a Annotation) Name() string {
	return strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(a.Type, "L"), ";"), "/", ".")
}

// ExceptionHandler is one row of a Code attribute's exception table.
type ExceptionHandler struct {
	StartPC, EndPC, HandlerPC uint16
	CatchType                 string
}

// Code is a method body.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Bytes     []byte
	Handlers  []ExceptionHandler
}

// Member is a field or method.
type Member struct {
	Access      uint16
	Name        string
	Descriptor  string
	Signature   string
	Annotations []Annotation
	Exceptions  []string // internal names from the Exceptions attribute
	Code        *Code
}

// BootstrapMethod is an entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRef uint16
	Args      []uint16
}

// EnclosingMethod names the method a local or anonymous class is declared in.
type EnclosingMethod struct {
	Class      string
	Name       string
	Descriptor string
}

// ClassFile is a parsed class.
type ClassFile struct {
	Minor, Major     uint16
	Pool             ConstantPool
	Access           uint16
	ThisClass        string
	SuperClass       string
	Interfaces       []string
	Fields           []Member
	Methods          []Member
	Signature        string
	SourceFile       string
	Annotations      []Annotation
	BootstrapMethods []BootstrapMethod
	EnclosingMethod  *EnclosingMethod
}

// FQN returns the binary class name with dots, e.g. "com.example.Outer$Inner".
func (c *ClassFile) FQN() string { return InternalToFQN(c.ThisClass) }

// InternalToFQN converts "com/example/Foo" to "com.example.Foo".
func InternalToFQN(name string) string { return strings.ReplaceAll(name, "/", ".") }

// Kind is the declaration kind: class, interface, enum, annotation or record.
func (c *ClassFile) Kind() string {
	switch {
	case c.Access&AccAnnotation != 0:
		return "annotation"
	case c.Access&AccInterface != 0:
		return "interface"
	case c.Access&AccEnum != 0:
		return "enum"
	case c.SuperClass == "java/lang/Record":
		return "record"
	default:
		return "class"
	}
}

// Modifiers renders access flags as source modifiers.
func Modifiers(access uint16, method bool) []string {
	var out []string
	add := func(flag uint16, name string) {
		if access&flag != 0 {
			out = append(out, name)
		}
	}
	add(AccPublic, "public")
	add(AccPrivate, "private")
	add(AccProtected, "protected")
	add(AccStatic, "static")
	add(AccFinal, "final")
	add(AccAbstract, "abstract")
	if method {
		add(AccSynchronized, "synchronized")
		add(AccNative, "native")
	}
	return out
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u1() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if r.u4() != classMagic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrNotClassFile
	}
	c := &ClassFile{Minor: r.u2(), Major: r.u2()}

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool
	c.Access = r.u2()
	c.ThisClass = pool.ClassName(r.u2())
	c.SuperClass = pool.ClassName(r.u2())
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		c.Interfaces = append(c.Interfaces, pool.ClassName(r.u2()))
	}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		c.Fields = append(c.Fields, readMember(r, pool, c))
	}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		c.Methods = append(c.Methods, readMember(r, pool, c))
	}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		readClassAttribute(r, pool, c)
	}
	if r.err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.ThisClass, r.err)
	}
	if c.ThisClass == "" {
		return nil, fmt.Errorf("%w: missing this_class", ErrBadConstant)
	}
	return c, nil
}

func readPool(r *reader) (ConstantPool, error) {
	count := r.u2()
	pool := make(ConstantPool, count)
	for i := 1; i < int(count); i++ {
		tag := r.u1()
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			c.Text = decodeModifiedUTF8(r.take(int(r.u2())))
		case TagInteger:
			c.Int = int64(int32(r.u4()))
		case TagFloat:
			c.Float = float64(math.Float32frombits(r.u4()))
		case TagLong:
			c.Int = int64(uint64(r.u4())<<32 | uint64(r.u4()))
		case TagDouble:
			c.Float = math.Float64frombits(uint64(r.u4())<<32 | uint64(r.u4()))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A, c.B = r.u2(), r.u2()
		case TagMethodHandle:
			c.RefKind = r.u1()
			c.A = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: tag %d at index %d", ErrBadConstant, tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		pool[i] = c
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return pool, nil
}

// decodeModifiedUTF8 handles the two differences from standard UTF-8 that
// matter in practice: the two-byte NUL and surrogate pairs encoded as two
// three-byte sequences.
func decodeModifiedUTF8(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			sb.WriteByte(c)
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			sb.WriteRune(rune(c&0x1F)<<6 | rune(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			r := rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			if r >= 0xD800 && r <= 0xDBFF && i+5 < len(b) && b[i+3]&0xF0 == 0xE0 {
				lo := rune(b[i+3]&0x0F)<<12 | rune(b[i+4]&0x3F)<<6 | rune(b[i+5]&0x3F)
				if lo >= 0xDC00 && lo <= 0xDFFF {
					sb.WriteRune(0x10000 + (r-0xD800)<<10 + (lo - 0xDC00))
					i += 6
					continue
				}
			}
			sb.WriteRune(r)
			i += 3
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func readMember(r *reader, pool ConstantPool, c *ClassFile) Member {
	m := Member{Access: r.u2(), Name: pool.UTF8(r.u2()), Descriptor: pool.UTF8(r.u2())}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		name := pool.UTF8(r.u2())
		body := &reader{data: r.take(int(r.u4()))}
		if r.err != nil {
			break
		}
		switch name {
		case "Code":
			m.Code = readCode(body, pool)
		case "Exceptions":
			for k := body.u2(); k > 0 && body.err == nil; k-- {
				m.Exceptions = append(m.Exceptions, pool.ClassName(body.u2()))
			}
		case "Signature":
			m.Signature = pool.UTF8(body.u2())
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			m.Annotations = append(m.Annotations, readAnnotations(body, pool, name == "RuntimeVisibleAnnotations")...)
		}
		if body.err != nil && r.err == nil {
			r.err = fmt.Errorf("%s attribute of %s.%s: %w", name, c.ThisClass, m.Name, body.err)
		}
	}
	return m
}

func readCode(r *reader, pool ConstantPool) *Code {
	code := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	code.Bytes = r.take(int(r.u4()))
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		h := ExceptionHandler{StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2()}
		if t := r.u2(); t != 0 {
			h.CatchType = pool.ClassName(t)
		}
		code.Handlers = append(code.Handlers, h)
	}
	// Nested attributes (LineNumberTable, StackMapTable, ...) are not needed.
	return code
}

func readClassAttribute(r *reader, pool ConstantPool, c *ClassFile) {
	name := pool.UTF8(r.u2())
	body := &reader{data: r.take(int(r.u4()))}
	if r.err != nil {
		return
	}
	switch name {
	case "Signature":
		c.Signature = pool.UTF8(body.u2())
	case "SourceFile":
		c.SourceFile = pool.UTF8(body.u2())
	case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
		c.Annotations = append(c.Annotations, readAnnotations(body, pool, name == "RuntimeVisibleAnnotations")...)
	case "BootstrapMethods":
		for n := body.u2(); n > 0 && body.err == nil; n-- {
			bm := BootstrapMethod{MethodRef: body.u2()}
			for k := body.u2(); k > 0 && body.err == nil; k-- {
				bm.Args = append(bm.Args, body.u2())
			}
			c.BootstrapMethods = append(c.BootstrapMethods, bm)
		}
	case "EnclosingMethod":
		em := &EnclosingMethod{Class: pool.ClassName(body.u2())}
		if idx := body.u2(); idx != 0 {
			em.Name, em.Descriptor = pool.NameAndType(idx)
		}
		c.EnclosingMethod = em
	}
	if body.err != nil {
		r.err = fmt.Errorf("%s attribute: %w", name, body.err)
	}
}

func readAnnotations(r *reader, pool ConstantPool, visible bool) []Annotation {
	var out []Annotation
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		out = append(out, readAnnotation(r, pool, visible))
	}
	return out
}

func readAnnotation(r *reader, pool ConstantPool, visible bool) Annotation {
	a := Annotation{Type: pool.UTF8(r.u2()), Visible: visible}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		r.u2() // element name
		skipElementValue(r, pool)
	}
	return a
}

func skipElementValue(r *reader, pool ConstantPool) {
	switch tag := r.u1(); tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		r.u2()
	case 'e':
		r.u2()
		r.u2()
	case '@':
		readAnnotation(r, pool, false)
	case '[':
		for n := r.u2(); n > 0 && r.err == nil; n-- {
			skipElementValue(r, pool)
		}
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: element value tag %q", ErrBadConstant, tag)
		}
	}
}
