package crate

import (
	"encoding/json"
	"fmt"
	"testing"
)

// testCodec is a simple JSON codec for testing without importing crate/json.
type testCodec struct{}

func (c *testCodec) ContentType() string { return "application/json" }

func (c *testCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *testCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// testLoader rebuilds closures and callables from a fixed table of
// implementations keyed by header or routine name.
type testLoader struct {
	impls map[string]Impl
}

func newTestLoader() *testLoader {
	return &testLoader{impls: map[string]Impl{
		"inc": func(env Env, _ ...any) (any, error) {
			n, _ := env.Vars["n"].(int)
			return n + 1, nil
		},
		"double": func(_ Env, args ...any) (any, error) {
			return args[0].(int) * 2, nil
		},
		"whoami": func(env Env, _ ...any) (any, error) {
			return env.Receiver, nil
		},
	}}
}

func (l *testLoader) Load(code CodeDescriptor, vars map[string]any) (*Func, error) {
	return NewFunc(code, vars, l.impls[code.Header]), nil
}

func (l *testLoader) Bind(fn *Func, receiver any, scope string) (*Func, error) {
	return fn.Bind(receiver, scope), nil
}

func (l *testLoader) Resolve(ref string, receiver any) (any, error) {
	impl, ok := l.impls[ref]
	if !ok {
		return nil, fmt.Errorf("unknown routine %q", ref)
	}
	f := NewRef(ref, impl)
	if receiver != nil {
		f = f.Bind(receiver, "")
	}
	return f, nil
}

func newTestSerializer(opts ...Option) *Serializer {
	base := []Option{WithLoader(newTestLoader())}
	return New(&testCodec{}, append(base, opts...)...)
}

// roundTrip boxes v and unboxes the tree without encoding it.
func roundTrip(t *testing.T, s *Serializer, v any) any {
	t.Helper()
	tree, err := s.Box(v)
	if err != nil {
		t.Fatalf("Box() error: %v", err)
	}
	out, err := s.Unbox(tree)
	if err != nil {
		t.Fatalf("Unbox() error: %v", err)
	}
	return out
}

var incCode = CodeDescriptor{Header: "inc", Body: "return n + 1", Flags: FlagShort}

// Types used across the engine tests.

type animal struct {
	name string
	Legs int
}

type dog struct {
	animal
	name  string
	Legs  int
	Owner *person
}

type person struct {
	Name string
	Dogs []*dog
}

type task struct {
	Name string
	Run  *Func
}

type celsius struct {
	deg float64
}

func (c *celsius) BoxFields() (map[string]any, error) {
	return map[string]any{"deg": c.deg}, nil
}

func (c *celsius) UnboxFields(fields map[string]any) error {
	deg, ok := fields["deg"].(float64)
	if !ok {
		return fmt.Errorf("deg is %T", fields["deg"])
	}
	c.deg = deg
	return nil
}

type point struct {
	Inline
	X, Y int
}

type flexible struct {
	Name  string
	Extra map[string]any `crate:",remain"`
}

type withSkip struct {
	Keep int
	Drop int `crate:"-"`
}
