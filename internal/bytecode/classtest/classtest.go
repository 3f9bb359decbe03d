// Package classtest assembles minimal JVM class files and jars for tests.
package classtest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	tagUtf8               = 1
	tagClass              = 7
	tagString             = 8
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12

	opInvokeinterface = 0xb9
)

// Class accumulates a constant pool and methods.
type Class struct {
	pool     []byte
	next     uint16
	cache    map[string]uint16
	methods  []byte
	nmethods uint16
	fields   []byte
	nfields  uint16
}

func NewClass() *Class { return &Class{next: 1, cache: map[string]uint16{}} }

func U2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func U4(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

// Join concatenates byte slices.
func Join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Op encodes an instruction with raw operand bytes.
func Op(b ...byte) []byte { return b }

// Op2 encodes an instruction with a two-byte operand.
func Op2(op byte, idx uint16) []byte { return Join([]byte{op}, U2(idx)) }

// InvokeInterface encodes invokeinterface; count is 1 plus the argument slots.
func InvokeInterface(idx uint16, count byte) []byte {
	return Join([]byte{opInvokeinterface}, U2(idx), []byte{count, 0})
}

func (a *Class) entry(key string, data []byte) uint16 {
	if i, ok := a.cache[key]; ok {
		return i
	}
	i := a.next
	a.next++
	a.pool = append(a.pool, data...)
	a.cache[key] = i
	return i
}

func (a *Class) UTF8(s string) uint16 {
	return a.entry("u:"+s, Join([]byte{tagUtf8}, U2(uint16(len(s))), []byte(s)))
}

func (a *Class) ClassRef(name string) uint16 {
	n := a.UTF8(name)
	return a.entry("c:"+name, Join([]byte{tagClass}, U2(n)))
}

func (a *Class) String(s string) uint16 {
	n := a.UTF8(s)
	return a.entry("s:"+s, Join([]byte{tagString}, U2(n)))
}

func (a *Class) nameType(name, desc string) uint16 {
	n, d := a.UTF8(name), a.UTF8(desc)
	return a.entry("nt:"+name+":"+desc, Join([]byte{tagNameAndType}, U2(n), U2(d)))
}

func (a *Class) ref(tag byte, owner, name, desc string) uint16 {
	c, nt := a.ClassRef(owner), a.nameType(name, desc)
	key := fmt.Sprintf("%d:%s.%s%s", tag, owner, name, desc)
	return a.entry(key, Join([]byte{tag}, U2(c), U2(nt)))
}

func (a *Class) MethodRef(owner, name, desc string) uint16 {
	return a.ref(tagMethodref, owner, name, desc)
}

func (a *Class) InterfaceMethodRef(owner, name, desc string) uint16 {
	return a.ref(tagInterfaceMethodref, owner, name, desc)
}

// Field adds a field without attributes.
func (a *Class) Field(access uint16, name, desc string) {
	a.fields = Join(a.fields, U2(access), U2(a.UTF8(name)), U2(a.UTF8(desc)), U2(0))
	a.nfields++
}

// Method adds a method with the given body and runtime-visible annotations
// (descriptors such as "Lcom/acme/Marker;"). A nil body adds an abstract
// method without a Code attribute.
func (a *Class) Method(access uint16, name, desc string, code []byte, annotations ...string) {
	var attrs uint16
	var body []byte
	if code != nil {
		attrs++
		body = Join(
			U2(a.UTF8("Code")),
			U4(uint32(12+len(code))),
			U2(16), U2(8), // max stack, max locals
			U4(uint32(len(code))), code,
			U2(0), U2(0), // exception table, attributes
		)
	}
	if len(annotations) > 0 {
		attrs++
		ann := U2(uint16(len(annotations)))
		for _, t := range annotations {
			ann = Join(ann, U2(a.UTF8(t)), U2(0))
		}
		body = Join(body, U2(a.UTF8("RuntimeVisibleAnnotations")), U4(uint32(len(ann))), ann)
	}
	a.methods = Join(a.methods, U2(access), U2(a.UTF8(name)), U2(a.UTF8(desc)), U2(attrs), body)
	a.nmethods++
}

// Bytes serializes the class (version 52) with the given names and interfaces.
func (a *Class) Bytes(access uint16, this, super string, interfaces ...string) []byte {
	thisIdx, superIdx := a.ClassRef(this), a.ClassRef(super)
	ifaces := U2(uint16(len(interfaces)))
	for _, i := range interfaces {
		ifaces = Join(ifaces, U2(a.ClassRef(i)))
	}
	return Join(
		U4(0xCAFEBABE), U2(0), U2(52),
		U2(a.next), a.pool,
		U2(access), U2(thisIdx), U2(superIdx),
		ifaces,
		U2(a.nfields), a.fields,
		U2(a.nmethods), a.methods,
		U2(0), // attributes
	)
}

// Jar zips the given entries in name order.
func Jar(entries map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
