package bytecode

import (
	"fmt"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// Site is one integration call found directly in a method body. Offset and
// Seq identify it within the method: one instruction can yield several
// sites (a subscribe to a topic list, for example).
type Site struct {
	Method MethodID
	Offset int
	Seq    int
	Point  domain.IntegrationPoint
}

type siteKey struct {
	method MethodID
	offset int
	seq    int
}

func (s Site) key() siteKey { return siteKey{s.Method, s.Offset, s.Seq} }

// scanner interprets one method body.
type scanner struct {
	class    *ClassFile
	id       MethodID
	graph    *CallGraph
	frame    *frame
	handlers map[int]bool
	sites    []Site
	seq      map[int]int
	resil    resiliency
}

// scanMethod records m's calls in graph and returns the integration sites
// found in its body. A body that fails to decode is scanned up to the
// failure and the error returned alongside.
func scanMethod(c *ClassFile, m *Member, graph *CallGraph) ([]Site, error) {
	s := &scanner{
		class: c,
		id:    MethodID{Owner: c.ThisClass, Name: m.Name, Descriptor: m.Descriptor},
		graph: graph,
		frame: newFrame(),
		seq:   map[int]int{},
	}
	s.resil.fromAnnotations(m.Annotations)
	if m.Code == nil {
		return nil, nil
	}
	s.handlers = make(map[int]bool, len(m.Code.Handlers))
	for _, h := range m.Code.Handlers {
		s.handlers[int(h.HandlerPC)] = true
	}
	if m.Access&AccStatic == 0 {
		s.frame.locals[0] = objectValue(c.ThisClass)
	}

	code, err := Decode(m.Code.Bytes)
	for _, ins := range code {
		s.step(ins)
	}
	s.resil.apply(s.sites)
	if err != nil {
		err = fmt.Errorf("%s: %w", s.id, err)
	}
	return s.sites, err
}

func (s *scanner) emit(offset int, p domain.IntegrationPoint) int {
	seq := s.seq[offset]
	s.seq[offset]++
	s.sites = append(s.sites, Site{Method: s.id, Offset: offset, Seq: seq, Point: p})
	return len(s.sites) - 1
}

// loadKind returns the operand type of a load or store: 0 int, 1 long,
// 2 float, 3 double, 4 reference.
func loadKind(op byte) int {
	switch {
	case op >= OpIload && op <= OpAload:
		return int(op - OpIload)
	case op >= 0x1a && op <= 0x2d:
		return int(op-0x1a) / 4
	case op >= OpIstore && op <= OpAstore:
		return int(op - OpIstore)
	case op >= 0x3b && op <= 0x4e:
		return int(op-0x3b) / 4
	}
	return 0
}

func wideIf(w bool) *value {
	if w {
		return unknownWide
	}
	return unknown
}

func (s *scanner) step(ins Instruction) {
	f := s.frame
	if s.handlers[ins.Offset] {
		f.reset()
		f.push(unknown)
	}
	op := ins.Op
	switch {
	case op == 0x00, op == 0xca, op >= 0xfe:
	case op == OpAconstNull, op >= 0x02 && op <= 0x08, op >= 0x0b && op <= 0x0d:
		f.push(unknown)
	case op == 0x09 || op == 0x0a || op == 0x0e || op == 0x0f:
		f.push(unknownWide)
	case op == OpBipush, op == OpSipush:
		f.push(unknown)
	case op == OpLdc, op == OpLdcW:
		f.push(s.ldc(uint16(ins.Operand)))
	case op == OpLdc2W:
		f.push(unknownWide)

	case op >= OpIload && op <= 0x2d:
		k := loadKind(op)
		if k == 4 {
			if v, ok := f.locals[localIndex(ins)]; ok {
				f.push(v)
				return
			}
		}
		f.push(wideIf(k == 1 || k == 3))
	case op >= 0x2e && op <= 0x35: // array loads
		f.drop(2)
		f.push(wideIf(op == 0x2f || op == 0x31))
	case op >= OpIstore && op <= 0x4e:
		idx, v := localIndex(ins), f.pop()
		if k := loadKind(op); k == 4 {
			f.locals[idx] = v
		} else {
			delete(f.locals, idx)
			if k == 1 || k == 3 {
				delete(f.locals, idx+1)
			}
		}
	case op >= 0x4f && op <= 0x56: // array stores
		v := f.pop()
		f.pop()
		if arr := f.pop(); op == OpAastore && arr.kind == vList {
			arr.items = append(arr.items, v)
		}

	case op >= OpPop && op <= OpSwap:
		s.stackOp(op)

	case op >= 0x60 && op <= 0x73:
		f.drop(2)
		f.push(wideIf((op-0x60)%2 == 1))
	case op >= 0x74 && op <= 0x77:
		f.pop()
		f.push(wideIf((op-0x74)%2 == 1))
	case op >= 0x78 && op <= 0x83:
		f.drop(2)
		f.push(wideIf((op-0x78)%2 == 1))
	case op == OpIinc:
		delete(f.locals, ins.Operand)
	case op >= 0x85 && op <= 0x93:
		f.pop()
		f.push(wideIf(op == 0x85 || op == 0x87 || op == 0x8a || op == 0x8c || op == 0x8d || op == 0x8f))
	case op >= 0x94 && op <= 0x98:
		f.drop(2)
		f.push(unknown)

	case op >= OpIfeq && op <= 0x9e, op == OpIfnull, op == OpIfnonnull:
		f.pop()
	case op >= 0x9f && op <= 0xa6:
		f.drop(2)
	case op == OpGoto, op == OpGotoW, op == OpJsr, op == OpJsrW, op == OpRet,
		op >= OpIreturn && op <= OpReturn, op == OpAthrow:
		f.reset()
	case op == OpTableswitch, op == OpLookupswitch:
		f.reset()

	case op == OpGetstatic:
		ref, _ := s.class.Pool.Member(uint16(ins.Operand))
		f.push(&value{kind: vStatic, typ: ref.Owner, text: ref.Name, site: -1, wide: ref.Descriptor == "J" || ref.Descriptor == "D"})
	case op == OpPutstatic:
		f.pop()
	case op == OpGetfield:
		ref, _ := s.class.Pool.Member(uint16(ins.Operand))
		f.pop()
		f.push(opaque(ref.Descriptor))
	case op == OpPutfield:
		f.drop(2)
	case op >= OpInvokevirtual && op <= OpInvokeinterface:
		s.invoke(ins)
	case op == OpInvokedynamic:
		s.invokeDynamic(ins)

	case op == OpNew:
		class := s.class.Pool.ClassName(uint16(ins.Operand))
		if class == stringBuilder || class == stringBuffer {
			f.push(&value{kind: vBuilder, typ: class, site: -1})
		} else {
			f.push(objectValue(class))
		}
	case op == OpNewarray, op == OpArraylength, op == OpInstanceof:
		f.pop()
		f.push(unknown)
	case op == OpAnewarray:
		f.pop()
		f.push(&value{kind: vList, site: -1})
	case op == OpCheckcast:
	case op == OpMonitorenter, op == OpMonitorexit:
		f.pop()
	case op == OpMultianewarray:
		f.drop(ins.Operand2)
		f.push(unknown)
	}
}

// stackOp applies pop, dup and swap, honoring two-slot values.
func (s *scanner) stackOp(op byte) {
	f := s.frame
	switch op {
	case OpPop:
		f.pop()
	case OpPop2:
		if v := f.pop(); !v.wide {
			f.pop()
		}
	case OpDup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case OpDupX1:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case OpDupX2:
		v1, v2 := f.pop(), f.pop()
		if v2.wide {
			f.push(v1)
			f.push(v2)
			f.push(v1)
			return
		}
		v3 := f.pop()
		f.push(v1)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case OpDup2:
		v1 := f.pop()
		if v1.wide {
			f.push(v1)
			f.push(v1)
			return
		}
		v2 := f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case OpDup2X1:
		v1 := f.pop()
		if v1.wide {
			v2 := f.pop()
			f.push(v1)
			f.push(v2)
			f.push(v1)
			return
		}
		v2, v3 := f.pop(), f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case OpDup2X2:
		v1 := f.pop()
		if v1.wide {
			v2 := f.pop()
			if v2.wide {
				f.push(v1)
				f.push(v2)
				f.push(v1)
				return
			}
			v3 := f.pop()
			f.push(v1)
			f.push(v3)
			f.push(v2)
			f.push(v1)
			return
		}
		v2, v3 := f.pop(), f.pop()
		if v3.wide {
			f.push(v2)
			f.push(v1)
			f.push(v3)
			f.push(v2)
			f.push(v1)
			return
		}
		v4 := f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v4)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case OpSwap:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
	}
}

func (s *scanner) ldc(idx uint16) *value {
	if str, ok := s.class.Pool.String(idx); ok {
		return stringValue(str)
	}
	return unknown
}

func (s *scanner) invoke(ins Instruction) {
	f := s.frame
	ref, ok := s.class.Pool.Member(uint16(ins.Operand))
	if !ok {
		f.reset()
		return
	}
	desc, err := ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		f.reset()
		return
	}
	c := &call{ins: ins, ref: ref, desc: desc, static: ins.Op == OpInvokestatic}
	c.args = f.popN(len(desc.Params))
	c.recv = unknown
	if !c.static {
		c.recv = f.pop()
	}
	s.graph.Add(s.id, MethodID{Owner: ref.Owner, Name: ref.Name, Descriptor: ref.Descriptor})
	s.resil.fromCall(ref)

	result := s.detect(c)
	if result == nil {
		result = model(c)
	}
	if result == nil && !c.static && c.recv.kind == vObject && desc.Return == "L"+ref.Owner+";" {
		result = c.recv // fluent builder
	}
	if desc.Return == "V" {
		return
	}
	if result == nil {
		result = opaque(desc.Return)
	}
	f.push(result)
}

const (
	stringConcatFactory = "java/lang/invoke/StringConcatFactory"
	lambdaMetafactory   = "java/lang/invoke/LambdaMetafactory"
)

func (s *scanner) invokeDynamic(ins Instruction) {
	f := s.frame
	pool := s.class.Pool
	indy, ok := pool.get(uint16(ins.Operand), TagInvokeDynamic)
	if !ok {
		f.reset()
		return
	}
	name, descStr := pool.NameAndType(indy.B)
	desc, err := ParseMethodDescriptor(descStr)
	if err != nil {
		f.reset()
		return
	}
	args := f.popN(len(desc.Params))

	var result *value
	if int(indy.A) < len(s.class.BootstrapMethods) {
		bm := s.class.BootstrapMethods[indy.A]
		bsm, _ := pool.MethodHandle(bm.MethodRef)
		switch {
		case bsm.Owner == stringConcatFactory && name == "makeConcatWithConstants" && len(bm.Args) > 0:
			recipe, _ := pool.String(bm.Args[0])
			var consts []string
			for _, a := range bm.Args[1:] {
				str, _ := pool.String(a)
				consts = append(consts, str)
			}
			result = concatRecipe(recipe, args, consts)
		case bsm.Owner == stringConcatFactory && name == "makeConcat":
			result = concatRecipe(strings.Repeat("\x01", len(args)), args, nil)
		case bsm.Owner == lambdaMetafactory && len(bm.Args) >= 2:
			if impl, ok := pool.MethodHandle(bm.Args[1]); ok {
				s.graph.Add(s.id, MethodID{Owner: impl.Owner, Name: impl.Name, Descriptor: impl.Descriptor})
			}
		}
	}
	if desc.Return == "V" {
		return
	}
	if result == nil {
		result = opaque(desc.Return)
	}
	f.push(result)
}
