package crate

import (
	"fmt"
	"reflect"
	"slices"
	"unsafe"
)

// identity is the runtime identity of a reference value. The pointer
// keeps the referenced memory alive for as long as the tracker exists,
// so an address cannot be reused by another value mid-traversal.
type identity struct {
	ptr unsafe.Pointer
	typ reflect.Type
	len int // Slices only: two slices share identity only with equal length
}

// boxTracker assigns node IDs while boxing. Each identity is boxed once;
// later encounters return the same *Node.
type boxTracker struct {
	seen         map[identity]*Node
	next         uint64
	resolveFirst []*Node
	boxes        int
	funcs        int
}

func newBoxTracker() *boxTracker {
	return &boxTracker{seen: make(map[identity]*Node)}
}

// getOrCreate returns the node already recorded for id, or records the
// node from alloc before calling fill, so cycles through id find it.
func (t *boxTracker) getOrCreate(id identity, alloc func(uint64) *Node, fill func(*Node) error) (*Node, error) {
	if n, ok := t.seen[id]; ok {
		return n, nil
	}
	t.next++
	n := alloc(t.next)
	t.seen[id] = n
	if err := fill(n); err != nil {
		return nil, err
	}
	return n, nil
}

// newID hands out an ID for nodes copied in from outside the traversal.
func (t *boxTracker) newID() uint64 {
	t.next++
	return t.next
}

type slotState uint8

const (
	unseen slotState = iota
	inProgress
	done
)

// slot tracks one node ID while unboxing.
type slot struct {
	state    slotState
	value    reflect.Value
	hasValue bool
	pending  []target
}

// unboxTracker maps node IDs to rebuilt values and remembers every
// destination still waiting for a value.
type unboxTracker struct {
	slots  map[uint64]*slot
	codes  map[uint64]*CodeDescriptor
	parked int
}

func newUnboxTracker() *unboxTracker {
	return &unboxTracker{
		slots: make(map[uint64]*slot),
		codes: make(map[uint64]*CodeDescriptor),
	}
}

func (t *unboxTracker) entry(id uint64) *slot {
	s, ok := t.slots[id]
	if !ok {
		s = &slot{}
		t.slots[id] = s
	}
	return s
}

// begin marks id as under construction.
func (t *unboxTracker) begin(id uint64) error {
	s := t.entry(id)
	if s.state != unseen {
		return newMalformed("", "node %d defined twice", id)
	}
	s.state = inProgress
	return nil
}

// publish makes v visible to references while id is still in progress.
func (t *unboxTracker) publish(id uint64, v reflect.Value) error {
	s := t.entry(id)
	s.value, s.hasValue = v, true
	return t.flush(s)
}

// finish records the final value of id and patches everything waiting.
func (t *unboxTracker) finish(id uint64, v reflect.Value) error {
	s := t.entry(id)
	s.value, s.hasValue = v, true
	s.state = done
	return t.flush(s)
}

// resolve assigns the value of id to dst now, or parks dst until the
// value exists.
func (t *unboxTracker) resolve(id uint64, dst target) error {
	s := t.entry(id)
	if s.hasValue {
		return dst.set(s.value)
	}
	s.pending = append(s.pending, dst)
	t.parked++
	return nil
}

// ready reports whether id has a value references can use.
func (t *unboxTracker) ready(id uint64) bool {
	s, ok := t.slots[id]
	return ok && s.hasValue
}

func (t *unboxTracker) flush(s *slot) error {
	pending := s.pending
	s.pending = nil
	for _, dst := range pending {
		if err := dst.set(s.value); err != nil {
			return err
		}
	}
	return nil
}

// close fails if any referenced ID was never finished.
func (t *unboxTracker) close() error {
	var ids []uint64
	for id, s := range t.slots {
		if s.state != done || len(s.pending) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return &DanglingReferenceError{IDs: ids}
}

// target is a destination for a decoded value.
type target interface {
	typ() reflect.Type
	set(v reflect.Value) error
}

// valueTarget writes into an addressable value.
type valueTarget struct {
	v reflect.Value
}

func (t valueTarget) typ() reflect.Type { return t.v.Type() }

func (t valueTarget) set(v reflect.Value) error {
	out, err := assign(t.v.Type(), v)
	if err != nil {
		return err
	}
	t.v.Set(out)
	return nil
}

// mapTarget writes a map entry.
type mapTarget struct {
	m   reflect.Value
	key reflect.Value
}

func (t mapTarget) typ() reflect.Type { return t.m.Type().Elem() }

func (t mapTarget) set(v reflect.Value) error {
	out, err := assign(t.m.Type().Elem(), v)
	if err != nil {
		return err
	}
	t.m.SetMapIndex(t.key, out)
	return nil
}

// copyTarget re-runs the copies of enclosing by-value composites after
// the inner destination is patched. Without it a late patch would land
// in a temporary that has already been copied out.
type copyTarget struct {
	target
	after []func() error
}

func (t copyTarget) set(v reflect.Value) error {
	if err := t.target.set(v); err != nil {
		return err
	}
	for i := len(t.after) - 1; i >= 0; i-- {
		if err := t.after[i](); err != nil {
			return err
		}
	}
	return nil
}

// assign converts v for storage in a destination of type dst.
func assign(dst reflect.Type, v reflect.Value) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(dst), nil
	}
	vt := v.Type()
	switch {
	case vt.AssignableTo(dst):
		return v, nil
	case vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(dst):
		if v.IsNil() {
			return reflect.Zero(dst), nil
		}
		return v.Elem(), nil
	case dst.Kind() == reflect.Pointer && vt.AssignableTo(dst.Elem()):
		p := reflect.New(dst.Elem())
		p.Elem().Set(v)
		return p, nil
	case isReal(vt.Kind()) && isReal(dst.Kind()):
		return scalarValue(realNode(v), dst)
	case convertible(vt, dst):
		return v.Convert(dst), nil
	}
	return reflect.Value{}, &MalformedBoxError{Reason: fmt.Sprintf("cannot assign %s to %s", vt, dst)}
}

func convertible(from, to reflect.Type) bool {
	fk, tk := from.Kind(), to.Kind()
	switch {
	case fk != tk:
		return false
	case fk == reflect.Struct:
		return false
	}
	return from.ConvertibleTo(to)
}

// realNode wraps a number so it can be stored through scalarValue.
func realNode(v reflect.Value) *Node {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &Node{Kind: KindInt, Int: v.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &Node{Kind: KindUint, Uint: v.Uint()}
	}
	return &Node{Kind: KindFloat, Float: v.Float()}
}

func isReal(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
