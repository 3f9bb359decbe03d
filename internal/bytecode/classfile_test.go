package bytecode

import (
	"errors"
	"reflect"
	"testing"

	"github.com/DeusData/docgraph/internal/bytecode/classtest"
)

func TestParseClass(t *testing.T) {
	a := classtest.NewClass()
	a.Method(AccPublic|AccSynchronized, "run", "(Ljava/lang/String;I)V", classtest.Op(OpReturn), "Lcom/acme/Marker;")
	c := mustParse(t, a.Bytes(AccPublic|AccInterface|AccAbstract, "com/acme/Outer$Inner", "java/lang/Object"))

	if c.FQN() != "com.acme.Outer$Inner" || c.Kind() != "interface" || c.Major != 52 {
		t.Errorf("class = %s %s %d", c.FQN(), c.Kind(), c.Major)
	}
	if len(c.Methods) != 1 {
		t.Fatalf("methods = %d", len(c.Methods))
	}
	m := c.Methods[0]
	if m.Name != "run" || m.Code == nil || len(m.Code.Bytes) != 1 {
		t.Errorf("method = %+v", m)
	}
	if len(m.Annotations) != 1 || m.Annotations[0].Name() != "com.acme.Marker" || !m.Annotations[0].Visible {
		t.Errorf("annotations = %+v", m.Annotations)
	}
	if got := Modifiers(m.Access, true); !reflect.DeepEqual(got, []string{"public", "synchronized"}) {
		t.Errorf("modifiers = %v", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}); !errors.Is(err, ErrNotClassFile) {
		t.Errorf("err = %v, want ErrNotClassFile", err)
	}
	if _, err := Parse([]byte{0xCA, 0xFE}); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestMethodDescriptor(t *testing.T) {
	md, err := ParseMethodDescriptor("([Ljava/lang/String;JLjava/util/List;)[I")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(md.Params, []string{"[Ljava/lang/String;", "J", "Ljava/util/List;"}) || md.Return != "[I" {
		t.Errorf("descriptor = %+v", md)
	}
	if got := TypeName(md.Params[0]); got != "java.lang.String[]" {
		t.Errorf("TypeName = %q", got)
	}
	if got := TypeName(md.Return); got != "int[]" {
		t.Errorf("TypeName = %q", got)
	}
	if _, err := ParseMethodDescriptor("(Ljava/lang/String"); err == nil {
		t.Error("unterminated descriptor should fail")
	}
}

func TestDecodeSwitchPadding(t *testing.T) {
	code := classtest.Join(
		classtest.Op(0x1a), // iload_0
		classtest.Op(OpTableswitch, 0, 0),
		classtest.U4(23), classtest.U4(0), classtest.U4(1), // default, low, high
		classtest.U4(23), classtest.U4(23),
		classtest.Op(OpReturn),
	)
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 3 {
		t.Fatalf("instructions = %+v", ins)
	}
	sw := ins[1]
	if sw.Op != OpTableswitch || sw.Default != 23 || len(sw.Targets) != 2 {
		t.Errorf("tableswitch = %+v", sw)
	}
	if ins[2].Offset != 24 || ins[2].Op != OpReturn {
		t.Errorf("after switch = %+v", ins[2])
	}
}

func TestDecodeWide(t *testing.T) {
	code := classtest.Join(
		classtest.Op(OpWide, OpIinc), classtest.U2(300), classtest.U2(0xffff),
		classtest.Op(OpWide, OpAload), classtest.U2(400),
		classtest.Op(OpReturn),
	)
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 3 || ins[0].Operand != 300 || ins[0].Operand2 != -1 || ins[1].Offset != 6 || localIndex(ins[1]) != 400 {
		t.Errorf("wide = %+v", ins)
	}
	if _, err := Decode([]byte{OpInvokevirtual, 0}); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated operand: err = %v", err)
	}
}

func TestConcatRecipe(t *testing.T) {
	got := concatRecipe("http://\x01/api/\x02", []*value{stringValue("svc")}, []string{"v1"})
	if s, ok := got.render(); !ok || s != "http://svc/api/v1" {
		t.Errorf("known concat = %q, %v", s, ok)
	}
	got = concatRecipe("\x01/orders", []*value{unknown}, nil)
	if s, _ := got.render(); s != "{}/orders" {
		t.Errorf("unknown part = %q", s)
	}
	if s, ok := concatRecipe("\x01\x01", []*value{unknown, unknown}, nil).render(); ok {
		t.Errorf("fully unknown concat rendered as known %q", s)
	}
}

func TestCallGraphCallers(t *testing.T) {
	g := NewCallGraph()
	a, b, c := MethodID{"A", "a", "()V"}, MethodID{"B", "b", "()V"}, MethodID{"C", "c", "()V"}
	g.Add(b, a)
	g.Add(c, a)
	g.Add(c, a)
	if got := g.Callers(a); !reflect.DeepEqual(got, []MethodID{b, c}) {
		t.Errorf("Callers = %v", got)
	}
	if got := g.Callees(c); !reflect.DeepEqual(got, []MethodID{a}) {
		t.Errorf("Callees = %v", got)
	}
	if a.OwnerFQN() != "A" || a.String() != "A.a()V" {
		t.Errorf("MethodID = %s", a)
	}
}
