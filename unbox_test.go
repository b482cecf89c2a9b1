package crate

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func intNode(i int64) *Node { return &Node{Kind: KindInt, Int: i} }

func TestUnbox_Malformed(t *testing.T) {
	s := newTestSerializer()

	tests := []struct {
		name string
		tree *Node
	}{
		{"unknown kind", &Node{Kind: "weird"}},
		{"box without payload", &Node{Kind: KindBox}},
		{"unknown box kind", &Node{Kind: KindBox, Box: &Box{Kind: "weird"}}},
		{"ref without target", &Node{Kind: KindList, Items: []*Node{{Kind: KindRef}}}},
		{"ordered below root", &Node{Kind: KindList, Items: []*Node{{Kind: KindOrdered}}}},
		{"defined twice", &Node{Kind: KindList, Items: []*Node{
			{Kind: KindPtr, ID: 1, Elem: intNode(1)},
			{Kind: KindPtr, ID: 1, Elem: intNode(2)},
		}}},
		{"closure without code", &Node{Kind: KindBox, ID: 1, Box: &Box{Kind: BoxClosure}}},
		{"closure with unknown code id", &Node{Kind: KindBox, ID: 1, Box: &Box{Kind: BoxClosure, CodeID: 4}}},
		{"callable without name", &Node{Kind: KindBox, ID: 1, Box: &Box{Kind: BoxCallable}}},
		{"receiver still being built", &Node{Kind: KindBox, ID: 1, Box: &Box{
			Kind:     BoxCallable,
			Ref:      "whoami",
			Receiver: &Node{Kind: KindRef, Ref: 5},
		}}},
		{"receiver is a closure being built", &Node{Kind: KindBox, ID: 1, Box: &Box{
			Kind: BoxClosure,
			Code: &incCode,
			Vars: []Field{{Name: "bound", Value: &Node{Kind: KindBox, ID: 2, Box: &Box{
				Kind:     BoxClosure,
				Code:     &incCode,
				Receiver: &Node{Kind: KindRef, Ref: 1},
			}}}},
		}}},
		{"map key still being built", &Node{Kind: KindList, ID: 1, Items: []*Node{
			{Kind: KindMap, Entries: []Entry{{Key: &Node{Kind: KindRef, Ref: 2}, Value: intNode(1)}}},
			{Kind: KindPtr, ID: 2, Elem: intNode(1)},
		}}},
		{"uncomparable map key", &Node{Kind: KindMap, Entries: []Entry{
			{Key: &Node{Kind: KindList, Items: []*Node{intNode(1)}}, Value: intNode(1)},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Unbox(tt.tree)
			if !errors.Is(err, ErrMalformedBox) {
				t.Errorf("Unbox() error = %v, want ErrMalformedBox", err)
			}
		})
	}
}

func TestUnbox_Dangling(t *testing.T) {
	s := newTestSerializer()
	tree := &Node{Kind: KindList, Items: []*Node{{Kind: KindRef, Ref: 9}}}

	_, err := s.Unbox(tree)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("Unbox() error = %v, want ErrDanglingReference", err)
	}
	var de *DanglingReferenceError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should find DanglingReferenceError")
	}
	if !reflect.DeepEqual(de.IDs, []uint64{9}) {
		t.Errorf("IDs = %v, want [9]", de.IDs)
	}
}

func TestUnbox_UnresolvableType(t *testing.T) {
	s := newTestSerializer()
	tree := &Node{Kind: KindBox, ID: 1, Box: &Box{Kind: BoxObject, Type: "example.com/nope.Missing"}}

	_, err := s.Unbox(tree)
	var ue *UnresolvableTypeError
	if !errors.As(err, &ue) {
		t.Fatalf("Unbox() error = %v, want UnresolvableTypeError", err)
	}
	if ue.Type != "example.com/nope.Missing" {
		t.Errorf("Type = %q", ue.Type)
	}
}

func TestUnbox_NoLoader(t *testing.T) {
	s := New(&testCodec{})
	tree, err := s.Box(NewFunc(incCode, nil, nil))
	if err != nil {
		t.Fatalf("Box() error: %v", err)
	}
	if _, err := s.Unbox(tree); !errors.Is(err, ErrNoLoader) {
		t.Errorf("Unbox() error = %v, want ErrNoLoader", err)
	}
}

func TestUnboxInto_GuidedByTarget(t *testing.T) {
	s := newTestSerializer()

	var i32 int32
	if err := s.UnboxInto(intNode(7), &i32); err != nil {
		t.Fatalf("UnboxInto(int32) error: %v", err)
	}
	if i32 != 7 {
		t.Errorf("int32 = %d, want 7", i32)
	}

	var f float64
	if err := s.UnboxInto(intNode(7), &f); err != nil {
		t.Fatalf("UnboxInto(float64) error: %v", err)
	}
	if f != 7 {
		t.Errorf("float64 = %v, want 7", f)
	}

	var i int
	err := s.UnboxInto(&Node{Kind: KindString, Str: "x"}, &i)
	if !errors.Is(err, ErrMalformedBox) {
		t.Errorf("UnboxInto(string into int) error = %v, want ErrMalformedBox", err)
	}
}

func TestUnboxInto_NumericRange(t *testing.T) {
	tests := []struct {
		name    string
		node    *Node
		dst     any
		want    any
		wantErr bool
	}{
		{"fits int8", intNode(127), new(int8), int8(127), false},
		{"overflows int8", intNode(300), new(int8), nil, true},
		{"below int8", intNode(-129), new(int8), nil, true},
		{"uint into int", &Node{Kind: KindUint, Uint: 5}, new(int), 5, false},
		{"max uint into int", &Node{Kind: KindUint, Uint: math.MaxUint64}, new(int), nil, true},
		{"negative into uint", intNode(-1), new(uint), nil, true},
		{"overflows uint8", &Node{Kind: KindUint, Uint: 256}, new(uint8), nil, true},
		{"integral float into int", &Node{Kind: KindFloat, Float: 3}, new(int), 3, false},
		{"fraction into int", &Node{Kind: KindFloat, Float: 2.9}, new(int), nil, true},
		{"NaN into int64", &Node{Kind: KindFloat, Float: math.NaN()}, new(int64), nil, true},
		{"huge float into int64", &Node{Kind: KindFloat, Float: 1e19}, new(int64), nil, true},
		{"negative float into uint", &Node{Kind: KindFloat, Float: -1}, new(uint64), nil, true},
		{"int into float32", intNode(7), new(float32), float32(7), false},
		{"overflows float32", &Node{Kind: KindFloat, Float: 1e300}, new(float32), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSerializer()
			err := s.UnboxInto(tt.node, tt.dst)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedBox) {
					t.Errorf("UnboxInto() error = %v, want ErrMalformedBox", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnboxInto() error: %v", err)
			}
			if got := reflect.ValueOf(tt.dst).Elem().Interface(); got != tt.want {
				t.Errorf("UnboxInto() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnboxInto_NarrowField(t *testing.T) {
	s := newTestSerializer()
	tree := &Node{Kind: KindInline, Fields: []Field{{Name: "Small", Value: intNode(1000)}}}

	var dst struct{ Small int8 }
	if err := s.UnboxInto(tree, &dst); !errors.Is(err, ErrMalformedBox) {
		t.Errorf("UnboxInto() error = %v, want ErrMalformedBox", err)
	}
}

func TestAssign_NumericRange(t *testing.T) {
	int8Type := reflect.TypeFor[int8]()
	if _, err := assign(int8Type, reflect.ValueOf(1000)); !errors.Is(err, ErrMalformedBox) {
		t.Errorf("assign(1000 to int8) error = %v, want ErrMalformedBox", err)
	}
	if _, err := assign(reflect.TypeFor[uint](), reflect.ValueOf(-1)); !errors.Is(err, ErrMalformedBox) {
		t.Errorf("assign(-1 to uint) error = %v, want ErrMalformedBox", err)
	}
	out, err := assign(int8Type, reflect.ValueOf(int64(5)))
	if err != nil {
		t.Fatalf("assign() error: %v", err)
	}
	if out.Interface() != int8(5) {
		t.Errorf("assign() = %v, want 5", out)
	}
}

func TestUnbox_NaturalTypes(t *testing.T) {
	s := newTestSerializer()
	tree := &Node{Kind: KindMap, Entries: []Entry{
		{Key: intNode(1), Value: &Node{Kind: KindString, Str: "a"}},
	}}

	out, err := s.Unbox(tree)
	if err != nil {
		t.Fatalf("Unbox() error: %v", err)
	}
	want := map[any]any{1: "a"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Unbox() = %#v, want %#v", out, want)
	}

	tree = &Node{Kind: KindList, Items: []*Node{
		{Kind: KindBool, Bool: true},
		{Kind: KindUint, Uint: 1 << 40},
		{Kind: KindFloat, Float: 0.5},
	}}
	out, err = s.Unbox(tree)
	if err != nil {
		t.Fatalf("Unbox() error: %v", err)
	}
	wantList := []any{true, uint(1 << 40), 0.5}
	if !reflect.DeepEqual(out, wantList) {
		t.Errorf("Unbox() = %#v, want %#v", out, wantList)
	}
}

func TestUnboxInto_InvalidTarget(t *testing.T) {
	s := newTestSerializer()

	var nilPtr *int
	for _, dst := range []any{5, nilPtr, nil} {
		if err := s.UnboxInto(intNode(1), dst); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("UnboxInto(%T) error = %v, want ErrInvalidTarget", dst, err)
		}
	}
}

func TestUnboxInto_FailureLeavesTarget(t *testing.T) {
	s := newTestSerializer()
	dst := []int{9}
	tree := &Node{Kind: KindList, Items: []*Node{{Kind: KindRef, Ref: 3}}}

	if err := s.UnboxInto(tree, &dst); err == nil {
		t.Fatal("UnboxInto() should fail on a dangling ref")
	}
	if len(dst) != 1 || dst[0] != 9 {
		t.Errorf("dst = %v, want untouched [9]", dst)
	}
}

func TestUnbox_ForwardRef(t *testing.T) {
	s := newTestSerializer()
	// The ref is read before the node it points at.
	tree := &Node{Kind: KindList, Items: []*Node{
		{Kind: KindRef, Ref: 2},
		{Kind: KindPtr, ID: 2, Type: "*int", Elem: intNode(4)},
	}}

	out, err := s.Unbox(tree)
	if err != nil {
		t.Fatalf("Unbox() error: %v", err)
	}
	items := out.([]any)
	p0, ok := items[0].(*int)
	if !ok {
		t.Fatalf("items[0] = %T", items[0])
	}
	if p0 != items[1].(*int) || *p0 != 4 {
		t.Error("forward ref was not patched with the shared pointer")
	}
}

func TestUnbox_SelfCapturingClosure(t *testing.T) {
	s := newTestSerializer()
	vars := map[string]any{"n": 5}
	f := NewFunc(incCode, vars, nil)
	vars["self"] = f

	out := roundTrip(t, s, f).(*Func)
	if out.Vars()["self"] != out {
		t.Error("closure does not capture itself after unbox")
	}
	if got, _ := out.Call(); got != 6 {
		t.Errorf("Call() = %v, want 6", got)
	}
}

func TestUnbox_ByValueStructPatchedLate(t *testing.T) {
	s := newTestSerializer()
	vars := map[string]any{}
	f := NewFunc(incCode, vars, nil)
	vars["t"] = task{Name: "job", Run: f}

	out := roundTrip(t, s, f).(*Func)
	got, ok := out.Vars()["t"].(task)
	if !ok {
		t.Fatalf("t = %T", out.Vars()["t"])
	}
	if got.Name != "job" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Run != out {
		t.Error("by-value struct did not receive the late closure")
	}
}

func TestUnbox_MapWithPointerKeys(t *testing.T) {
	s := newTestSerializer()
	a, b := &person{Name: "a"}, &person{Name: "b"}
	m := map[*person]int{a: 1, b: 2}

	out := roundTrip(t, s, []any{a, m}).([]any)
	ra := out[0].(*person)
	rm := out[1].(map[*person]int)
	if rm[ra] != 1 {
		t.Errorf("key identity lost: m[a] = %d, want 1", rm[ra])
	}
	if len(rm) != 2 {
		t.Errorf("len(m) = %d, want 2", len(rm))
	}
}

func TestUnboxTracker(t *testing.T) {
	tr := newUnboxTracker()
	var dst any
	parked := valueTarget{reflect.ValueOf(&dst).Elem()}

	if err := tr.resolve(1, parked); err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if tr.parked != 1 || tr.ready(1) {
		t.Fatal("unresolved ref should be parked")
	}
	if err := tr.begin(1); err != nil {
		t.Fatalf("begin() error: %v", err)
	}
	if err := tr.close(); !errors.Is(err, ErrDanglingReference) {
		t.Errorf("close() with open slot = %v, want ErrDanglingReference", err)
	}
	if err := tr.finish(1, reflect.ValueOf("done")); err != nil {
		t.Fatalf("finish() error: %v", err)
	}
	if dst != "done" {
		t.Errorf("parked target = %v, want done", dst)
	}
	if err := tr.close(); err != nil {
		t.Errorf("close() = %v", err)
	}
	if err := tr.begin(1); !errors.Is(err, ErrMalformedBox) {
		t.Errorf("begin() twice = %v, want ErrMalformedBox", err)
	}
}
