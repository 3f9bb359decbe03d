package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Opcodes the analyzer looks at by name. The decoder handles all of them.
const (
	OpAconstNull      = 0x01
	OpIconst0         = 0x03
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpAload           = 0x19
	OpAload0          = 0x2a
	OpAaload          = 0x32
	OpIstore          = 0x36
	OpAstore          = 0x3a
	OpAstore0         = 0x4b
	OpAastore         = 0x53
	OpPop             = 0x57
	OpPop2            = 0x58
	OpDup             = 0x59
	OpDupX1           = 0x5a
	OpDupX2           = 0x5b
	OpDup2            = 0x5c
	OpDup2X1          = 0x5d
	OpDup2X2          = 0x5e
	OpSwap            = 0x5f
	OpIinc            = 0x84
	OpIfeq            = 0x99
	OpGoto            = 0xa7
	OpJsr             = 0xa8
	OpRet             = 0xa9
	OpTableswitch     = 0xaa
	OpLookupswitch    = 0xab
	OpIreturn         = 0xac
	OpAreturn         = 0xb0
	OpReturn          = 0xb1
	OpGetstatic       = 0xb2
	OpPutstatic       = 0xb3
	OpGetfield        = 0xb4
	OpPutfield        = 0xb5
	OpInvokevirtual   = 0xb6
	OpInvokespecial   = 0xb7
	OpInvokestatic    = 0xb8
	OpInvokeinterface = 0xb9
	OpInvokedynamic   = 0xba
	OpNew             = 0xbb
	OpNewarray        = 0xbc
	OpAnewarray       = 0xbd
	OpArraylength     = 0xbe
	OpAthrow          = 0xbf
	OpCheckcast       = 0xc0
	OpInstanceof      = 0xc1
	OpMonitorenter    = 0xc2
	OpMonitorexit     = 0xc3
	OpWide            = 0xc4
	OpMultianewarray  = 0xc5
	OpIfnull          = 0xc6
	OpIfnonnull       = 0xc7
	OpGotoW           = 0xc8
	OpJsrW            = 0xc9
)

// Instruction is one decoded instruction. Operand holds the constant pool
// index, local variable index, branch offset or immediate value; Operand2
// holds the iinc increment, the invokeinterface count or the
// multianewarray dimensions.
type Instruction struct {
	Offset   int
	Op       byte
	Operand  int
	Operand2 int
	Wide     bool
	Default  int   // switch default offset
	Targets  []int // switch case offsets
}

// operandLen gives the operand byte count of fixed-length opcodes; -1 marks
// the variable-length ones and -2 unassigned opcodes.
var operandLen = func() [256]int {
	var t [256]int
	for i := range t {
		t[i] = -2
	}
	set := func(from, to, n int) {
		for op := from; op <= to; op++ {
			t[op] = n
		}
	}
	set(0x00, 0x0f, 0) // nop, constants
	set(0x10, 0x10, 1) // bipush
	set(0x11, 0x11, 2) // sipush
	set(0x12, 0x12, 1) // ldc
	set(0x13, 0x14, 2) // ldc_w, ldc2_w
	set(0x15, 0x19, 1) // loads
	set(0x1a, 0x35, 0) // load_n, array loads
	set(0x36, 0x3a, 1) // stores
	set(0x3b, 0x83, 0) // store_n, array stores, stack, arithmetic
	set(0x84, 0x84, 2) // iinc
	set(0x85, 0x98, 0) // conversions, comparisons
	set(0x99, 0xa8, 2) // branches, goto, jsr
	set(0xa9, 0xa9, 1) // ret
	set(0xaa, 0xab, -1)
	set(0xac, 0xb1, 0) // returns
	set(0xb2, 0xb8, 2) // field access, invokes
	set(0xb9, 0xba, 4) // invokeinterface, invokedynamic
	set(0xbb, 0xbb, 2) // new
	set(0xbc, 0xbc, 1) // newarray
	set(0xbd, 0xbd, 2) // anewarray
	set(0xbe, 0xbf, 0)
	set(0xc0, 0xc1, 2) // checkcast, instanceof
	set(0xc2, 0xc3, 0)
	set(0xc4, 0xc4, -1) // wide
	set(0xc5, 0xc5, 3)  // multianewarray
	set(0xc6, 0xc7, 2)  // ifnull, ifnonnull
	set(0xc8, 0xc9, 4)  // goto_w, jsr_w
	set(0xca, 0xca, 0)  // breakpoint
	set(0xfe, 0xff, 0)  // impdep
	return t
}()

// Decode decodes a method body.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		ins, next, err := decodeAt(code, pc)
		if err != nil {
			return out, err
		}
		out = append(out, ins)
		pc = next
	}
	return out, nil
}

func decodeAt(code []byte, pc int) (Instruction, int, error) {
	op := code[pc]
	ins := Instruction{Offset: pc, Op: op}
	need := func(n int) error {
		if pc+1+n > len(code) {
			return fmt.Errorf("%w: opcode 0x%02x at %d", ErrTruncated, op, pc)
		}
		return nil
	}
	u2 := func(at int) int { return int(binary.BigEndian.Uint16(code[at:])) }
	s2 := func(at int) int { return int(int16(binary.BigEndian.Uint16(code[at:]))) }
	s4 := func(at int) int { return int(int32(binary.BigEndian.Uint32(code[at:]))) }

	switch n := operandLen[op]; n {
	case -2:
		return ins, 0, fmt.Errorf("unknown opcode 0x%02x at %d", op, pc)
	case -1:
		switch op {
		case OpWide:
			if err := need(3); err != nil {
				return ins, 0, err
			}
			ins.Wide = true
			ins.Op = code[pc+1]
			ins.Operand = u2(pc + 2)
			if ins.Op == OpIinc {
				if err := need(5); err != nil {
					return ins, 0, err
				}
				ins.Operand2 = s2(pc + 4)
				return ins, pc + 6, nil
			}
			return ins, pc + 4, nil
		case OpTableswitch:
			base := pc + 1 + (3-pc%4)%4
			if base+12 > len(code) {
				return ins, 0, fmt.Errorf("%w: tableswitch at %d", ErrTruncated, pc)
			}
			ins.Default = s4(base)
			low, high := s4(base+4), s4(base+8)
			count := high - low + 1
			if count < 0 || base+12+4*count > len(code) {
				return ins, 0, fmt.Errorf("%w: tableswitch at %d", ErrTruncated, pc)
			}
			for i := 0; i < count; i++ {
				ins.Targets = append(ins.Targets, s4(base+12+4*i))
			}
			ins.Operand = low
			return ins, base + 12 + 4*count, nil
		default: // lookupswitch
			base := pc + 1 + (3-pc%4)%4
			if base+8 > len(code) {
				return ins, 0, fmt.Errorf("%w: lookupswitch at %d", ErrTruncated, pc)
			}
			ins.Default = s4(base)
			pairs := s4(base + 4)
			if pairs < 0 || base+8+8*pairs > len(code) {
				return ins, 0, fmt.Errorf("%w: lookupswitch at %d", ErrTruncated, pc)
			}
			for i := 0; i < pairs; i++ {
				ins.Targets = append(ins.Targets, s4(base+8+8*i+4))
			}
			return ins, base + 8 + 8*pairs, nil
		}
	default:
		if err := need(n); err != nil {
			return ins, 0, err
		}
		switch n {
		case 1:
			ins.Operand = int(code[pc+1])
			if op == OpBipush {
				ins.Operand = int(int8(code[pc+1]))
			}
		case 2:
			switch {
			case op == OpIinc:
				ins.Operand = int(code[pc+1])
				ins.Operand2 = int(int8(code[pc+2]))
			case op == OpSipush || (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull:
				ins.Operand = s2(pc + 1)
			default:
				ins.Operand = u2(pc + 1)
			}
		case 3:
			ins.Operand = u2(pc + 1)
			ins.Operand2 = int(code[pc+3])
		case 4:
			if op == OpGotoW || op == OpJsrW {
				ins.Operand = s4(pc + 1)
			} else {
				ins.Operand = u2(pc + 1)
				ins.Operand2 = int(code[pc+3])
			}
		}
		return ins, pc + 1 + n, nil
	}
}

// localIndex returns the local variable slot of a load or store, including
// the *_0..*_3 forms, or -1.
func localIndex(ins Instruction) int {
	switch op := ins.Op; {
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore:
		return ins.Operand
	case op >= 0x1a && op <= 0x2d:
		return int(op-0x1a) % 4
	case op >= 0x3b && op <= 0x4e:
		return int(op-0x3b) % 4
	}
	return -1
}
