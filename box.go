package crate

import (
	"cmp"
	"fmt"
	"reflect"
	"sort"
	"unsafe"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	nodePtrType = reflect.TypeFor[*Node]()
	boxPtrType  = reflect.TypeFor[*Box]()
	funcPtrType = reflect.TypeFor[*Func]()
	bytesType   = reflect.TypeFor[[]byte]()
	listType    = reflect.TypeFor[[]any]()
	mapType     = reflect.TypeFor[map[string]any]()
	anyMapType  = reflect.TypeFor[map[any]any]()
)

// natural types are what a node decodes to when it carries no type name.
var naturalTypes = map[Kind]reflect.Type{
	KindBool:    reflect.TypeFor[bool](),
	KindInt:     reflect.TypeFor[int](),
	KindUint:    reflect.TypeFor[uint](),
	KindFloat:   reflect.TypeFor[float64](),
	KindComplex: reflect.TypeFor[complex128](),
	KindString:  reflect.TypeFor[string](),
	KindBytes:   bytesType,
	KindList:    listType,
	KindMap:     mapType,
}

// encoder walks a value graph and builds the in-memory box tree. Shared
// references map to the same *Node, so the result may contain cycles
// until it is flattened.
type encoder struct {
	tracker   *boxTracker
	extractor Extractor
	policy    BindPolicy
	maxDepth  int
	logger    *zap.Logger
	depth     int
}

// run boxes v and wraps the result in the ordering wrapper when function
// values were encountered.
func (e *encoder) run(v any) (*Node, error) {
	root, err := e.box(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	if e.tracker.funcs > 0 && len(e.tracker.resolveFirst) > 0 {
		root = &Node{
			Kind:  KindOrdered,
			Items: lo.Uniq(e.tracker.resolveFirst),
			Elem:  root,
		}
	}
	return root, nil
}

func (e *encoder) box(v reflect.Value) (*Node, error) {
	if e.depth >= e.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrDepthExceeded, e.maxDepth)
	}
	e.depth++
	defer func() { e.depth-- }()

	if !v.IsValid() {
		return &Node{Kind: KindNil}, nil
	}

	rt := v.Type()
	switch rt {
	case nodePtrType:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.adopt(v.Interface().(*Node)), nil
	case boxPtrType:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.adoptBox(v.Interface().(*Box)), nil
	case funcPtrType:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.boxFunc(v.Interface().(*Func))
	}

	switch rt.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.box(v.Elem())

	case reflect.Bool:
		return &Node{Kind: KindBool, Type: e.typeName(rt, KindBool), Bool: v.Bool()}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &Node{Kind: KindInt, Type: e.typeName(rt, KindInt), Int: v.Int()}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &Node{Kind: KindUint, Type: e.typeName(rt, KindUint), Uint: v.Uint()}, nil

	case reflect.Float32, reflect.Float64:
		return &Node{Kind: KindFloat, Type: e.typeName(rt, KindFloat), Float: v.Float()}, nil

	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return &Node{Kind: KindComplex, Type: e.typeName(rt, KindComplex), Float: real(c), Imag: imag(c)}, nil

	case reflect.String:
		return &Node{Kind: KindString, Type: e.typeName(rt, KindString), Str: v.String()}, nil

	case reflect.Slice:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		if rt.Elem().Kind() == reflect.Uint8 {
			return &Node{Kind: KindBytes, Type: e.typeName(rt, KindBytes), Bytes: append([]byte(nil), v.Bytes()...)}, nil
		}
		return e.boxList(v, true)

	case reflect.Array:
		return e.boxList(v, false)

	case reflect.Map:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.boxMap(v)

	case reflect.Pointer:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		if rt.Elem().Kind() == reflect.Struct {
			return e.boxStructPtr(v)
		}
		return e.boxPtr(v)

	case reflect.Struct:
		return e.boxStruct(v)

	case reflect.Func:
		if v.IsNil() {
			return &Node{Kind: KindNil}, nil
		}
		return e.boxRawFunc(v)
	}

	return nil, &UnsupportedValueError{Type: TypeName(rt)}
}

// typeName returns the name to write for rt, or "" when rt is the type
// the node decodes to anyway.
func (e *encoder) typeName(rt reflect.Type, kind Kind) string {
	if rt == naturalTypes[kind] {
		return ""
	}
	return remember(rt)
}

func (e *encoder) boxList(v reflect.Value, shared bool) (*Node, error) {
	rt := v.Type()
	typ := e.typeName(rt, KindList)
	fill := func(n *Node) error {
		n.Items = make([]*Node, v.Len())
		for i := range v.Len() {
			item, err := e.box(v.Index(i))
			if err != nil {
				return err
			}
			n.Items[i] = item
		}
		return nil
	}

	// Empty slices have no backing array worth tracking.
	if !shared || v.Len() == 0 {
		n := &Node{Kind: KindList, Type: typ}
		return n, fill(n)
	}
	id := identity{ptr: v.UnsafePointer(), typ: rt, len: v.Len()}
	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindList, ID: nid, Type: typ}
	}, fill)
}

func (e *encoder) boxMap(v reflect.Value) (*Node, error) {
	rt := v.Type()
	typ := e.typeName(rt, KindMap)
	id := identity{ptr: v.UnsafePointer(), typ: rt}
	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindMap, ID: nid, Type: typ}
	}, func(n *Node) error {
		// NaN keys cannot be looked up again, so pairs are read in one pass.
		type pair struct{ k, v reflect.Value }
		pairs := make([]pair, 0, v.Len())
		for it := v.MapRange(); it.Next(); {
			pairs = append(pairs, pair{it.Key(), it.Value()})
		}
		sort.SliceStable(pairs, func(i, j int) bool { return keyLess(pairs[i].k, pairs[j].k) })
		n.Entries = make([]Entry, 0, len(pairs))
		for _, p := range pairs {
			kn, err := e.box(p.k)
			if err != nil {
				return err
			}
			vn, err := e.box(p.v)
			if err != nil {
				return err
			}
			n.Entries = append(n.Entries, Entry{Key: kn, Value: vn})
		}
		return nil
	})
}

// keyLess orders map keys so output is deterministic.
func keyLess(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() {
		return !a.IsValid() && b.IsValid()
	}
	if a.Kind() != b.Kind() {
		return a.Kind() < b.Kind()
	}
	switch a.Kind() {
	case reflect.String:
		return a.String() < b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return cmp.Less(a.Float(), b.Float())
	case reflect.Bool:
		return !a.Bool() && b.Bool()
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func (e *encoder) boxPtr(v reflect.Value) (*Node, error) {
	rt := v.Type()
	typ := remember(rt)
	id := identity{ptr: v.UnsafePointer(), typ: rt}
	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindPtr, ID: nid, Type: typ}
	}, func(n *Node) error {
		elem, err := e.box(v.Elem())
		n.Elem = elem
		return err
	})
}

func (e *encoder) describe(rt reflect.Type) (*TypeDescriptor, error) {
	d := Describe(rt)
	if d.Resource {
		return nil, &UnsupportedValueError{Type: d.Name, Reason: "resource handle"}
	}
	if d.Err != nil {
		e.logger.Debug("type degraded to inline", zap.String("type", d.Name), zap.Error(d.Err))
	}
	return d, nil
}

// boxStructPtr boxes a pointer to a struct. Pointers carry identity: a
// boxable target becomes an object box, anything else a pointer node
// around its inline form.
func (e *encoder) boxStructPtr(v reflect.Value) (*Node, error) {
	rt := v.Type()
	d, err := e.describe(rt.Elem())
	if err != nil {
		return nil, err
	}
	id := identity{ptr: v.UnsafePointer(), typ: rt}

	if !d.Boxable {
		typ := remember(rt)
		return e.tracker.getOrCreate(id, func(nid uint64) *Node {
			return &Node{Kind: KindPtr, ID: nid, Type: typ}
		}, func(n *Node) error {
			elem, err := e.inline(v.Elem(), d)
			n.Elem = elem
			return err
		})
	}

	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindBox, ID: nid, Box: &Box{Kind: BoxObject, Type: d.Name}}
	}, func(n *Node) error {
		if err := e.fillObject(n.Box, d, v); err != nil {
			return err
		}
		e.tracker.boxes++
		e.tracker.resolveFirst = append(e.tracker.resolveFirst, n)
		return nil
	})
}

// boxStruct boxes a struct held by value. The result has no identity.
func (e *encoder) boxStruct(v reflect.Value) (*Node, error) {
	rt := v.Type()
	d, err := e.describe(rt)
	if err != nil {
		return nil, err
	}
	if !d.Boxable {
		return e.inline(v, d)
	}
	if d.Adapter != nil && d.Adapter.ByPointer {
		return nil, &UnsupportedValueError{Type: d.Name, Reason: "held by value"}
	}

	var p reflect.Value
	if v.CanAddr() {
		p = v.Addr()
	} else {
		p = reflect.New(rt)
		p.Elem().Set(v)
	}
	n := &Node{Kind: KindBox, Box: &Box{Kind: BoxObject, Type: d.Name, ByValue: true}}
	if err := e.fillObject(n.Box, d, p); err != nil {
		return nil, err
	}
	e.tracker.boxes++
	return n, nil
}

// fillObject writes the payload of an object box. p is a pointer to the
// struct. Adapters win over hooks, hooks over the generic codec.
func (e *encoder) fillObject(b *Box, d *TypeDescriptor, p reflect.Value) error {
	var err error
	switch {
	case d.Adapter != nil:
		var fields map[string]any
		if fields, err = d.Adapter.Box(p.Interface()); err != nil {
			return fmt.Errorf("box %s: %w", d.Name, err)
		}
		b.Fields, err = e.boxFieldMap(fields)
	case d.HasHook:
		var fields map[string]any
		if fields, err = p.Interface().(Boxer).BoxFields(); err != nil {
			return fmt.Errorf("box %s: %w", d.Name, err)
		}
		b.Fields, err = e.boxFieldMap(fields)
	default:
		b.Fields, b.Private, err = e.objectFields(d, p.Elem())
	}
	return err
}

// boxFieldMap boxes a field map in key order.
func (e *encoder) boxFieldMap(m map[string]any) ([]Field, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := lo.Keys(m)
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		n, err := e.box(reflect.ValueOf(m[k]))
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: k, Value: n})
	}
	return fields, nil
}

// inline writes the exported fields of a struct that is not boxed.
func (e *encoder) inline(v reflect.Value, d *TypeDescriptor) (*Node, error) {
	n := &Node{Kind: KindInline, Type: d.Name}
	for _, sf := range reflect.VisibleFields(v.Type()) {
		if !sf.IsExported() || (sf.Anonymous && sf.Type.Kind() == reflect.Struct) {
			continue
		}
		if parseTag(sf.Tag.Get(tagName)).skip {
			continue
		}
		fv, err := v.FieldByIndexErr(sf.Index)
		if err != nil {
			continue
		}
		fn, err := e.box(fv)
		if err != nil {
			return nil, err
		}
		n.Fields = append(n.Fields, Field{Name: sf.Name, Value: fn})
	}
	return n, nil
}

// boxFunc boxes a *Func as a closure or callable.
func (e *encoder) boxFunc(f *Func) (*Node, error) {
	id := identity{ptr: unsafe.Pointer(f), typ: funcPtrType}
	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindBox, ID: nid, Box: &Box{}}
	}, func(n *Node) error {
		b := n.Box
		if f.IsRef() {
			b.Kind = BoxCallable
			b.Ref = f.ref
			if f.receiver != nil {
				recv, err := e.box(reflect.ValueOf(f.receiver))
				if err != nil {
					return err
				}
				b.Receiver = recv
			}
		} else {
			code, err := e.extractor.Extract(f)
			if err != nil {
				return err
			}
			b.Kind = BoxClosure
			b.Code = &code

			withReceiver, withScope := e.policy.bind(code.Flags, f.receiver != nil, f.scope != "")
			if withReceiver {
				recv, err := e.box(reflect.ValueOf(f.receiver))
				if err != nil {
					return err
				}
				b.Receiver = recv
			}
			if withScope {
				b.Scope = f.scope
			}
			if b.Vars, err = e.boxFieldMap(f.vars); err != nil {
				return err
			}
		}
		e.tracker.funcs++
		e.tracker.resolveFirst = append(e.tracker.resolveFirst, n)
		return nil
	})
}

// boxRawFunc boxes a plain Go func that the extractor knows by name.
func (e *encoder) boxRawFunc(v reflect.Value) (*Node, error) {
	name, ok := e.extractor.Reference(v.Interface())
	if !ok {
		return nil, &UnsupportedValueError{Type: TypeName(v.Type()), Reason: "function is not registered"}
	}
	id := identity{ptr: v.UnsafePointer(), typ: v.Type()}
	return e.tracker.getOrCreate(id, func(nid uint64) *Node {
		return &Node{Kind: KindBox, ID: nid, Box: &Box{Kind: BoxCallable, Ref: name}}
	}, func(n *Node) error {
		e.tracker.funcs++
		e.tracker.resolveFirst = append(e.tracker.resolveFirst, n)
		return nil
	})
}

// adopt passes an already boxed tree through. Each source node is
// copied once per call, with IDs renumbered so they cannot collide with
// ours; a tree handed in twice is written once and referenced after. An
// ordering wrapper is unwrapped and its items join ours.
func (e *encoder) adopt(n *Node) *Node {
	a := &adopter{
		tracker: e.tracker,
		ids:     make(map[uint64]uint64),
		codes:   make(map[uint64]*CodeDescriptor),
	}
	if n.Kind != KindOrdered {
		return a.node(n)
	}
	for _, item := range n.Items {
		if c := a.node(item); c != nil && c.Kind != KindRef {
			e.tracker.resolveFirst = append(e.tracker.resolveFirst, c)
		}
	}
	return a.node(n.Elem)
}

// adoptBox passes a bare box through. Function boxes get an ID so every
// occurrence of b rebuilds to the same value.
func (e *encoder) adoptBox(b *Box) *Node {
	id := identity{ptr: unsafe.Pointer(b), typ: boxPtrType}
	if n, ok := e.tracker.seen[id]; ok {
		return n
	}
	n := e.adopt(&Node{Kind: KindBox, Box: b})
	if n.ID == 0 && b.Kind != BoxObject {
		n.ID = e.tracker.newID()
	}
	e.tracker.seen[id] = n
	return n
}

type adopter struct {
	tracker *boxTracker
	ids     map[uint64]uint64
	codes   map[uint64]*CodeDescriptor
}

func (a *adopter) renumber(id uint64) uint64 {
	if id == 0 {
		return 0
	}
	if nid, ok := a.ids[id]; ok {
		return nid
	}
	nid := a.tracker.newID()
	a.ids[id] = nid
	return nid
}

func (a *adopter) fields(in []Field) []Field {
	if in == nil {
		return nil
	}
	out := make([]Field, len(in))
	for i, f := range in {
		out[i] = Field{Name: f.Name, Value: a.node(f.Value)}
	}
	return out
}

func (a *adopter) node(in *Node) *Node {
	if in == nil {
		return nil
	}
	id := identity{ptr: unsafe.Pointer(in), typ: nodePtrType}
	if out, ok := a.tracker.seen[id]; ok {
		return out
	}
	out := new(Node)
	*out = *in
	a.tracker.seen[id] = out

	out.ID = a.renumber(in.ID)
	out.Ref = a.renumber(in.Ref)
	if in.Items != nil {
		out.Items = make([]*Node, len(in.Items))
		for i, item := range in.Items {
			out.Items[i] = a.node(item)
		}
	}
	if in.Entries != nil {
		out.Entries = make([]Entry, len(in.Entries))
		for i, en := range in.Entries {
			out.Entries[i] = Entry{Key: a.node(en.Key), Value: a.node(en.Value)}
		}
	}
	out.Fields = a.fields(in.Fields)
	out.Elem = a.node(in.Elem)
	if in.Box != nil {
		out.Box = a.box(in.Box)
		a.count(out)
	}
	return out
}

// box copies a box in the same order as flatten, so a code descriptor is
// seen before the boxes that only carry its CodeID. Code IDs are
// renumbered when the result is flattened.
func (a *adopter) box(in *Box) *Box {
	b := *in
	if b.Code != nil && b.CodeID != 0 {
		a.codes[b.CodeID] = b.Code
	} else if b.Code == nil && b.CodeID != 0 {
		b.Code = a.codes[b.CodeID]
	}
	b.CodeID = 0
	b.Fields = a.fields(in.Fields)
	if in.Private != nil {
		b.Private = make([]Bucket, len(in.Private))
		for i, bk := range in.Private {
			b.Private[i] = Bucket{Type: bk.Type, Fields: a.fields(bk.Fields)}
		}
	}
	b.Receiver = a.node(in.Receiver)
	b.Vars = a.fields(in.Vars)
	return &b
}

// count records an adopted box. Adopted nodes keep their decode order,
// so only the items of an adopted ordering wrapper move to the front.
func (a *adopter) count(n *Node) {
	switch n.Box.Kind {
	case BoxObject:
		a.tracker.boxes++
	case BoxClosure, BoxCallable:
		a.tracker.funcs++
	}
}

// bind decides which parts of a closure's binding are written.
func (p BindPolicy) bind(flags CodeFlags, hasReceiver, hasScope bool) (receiver, scope bool) {
	switch p {
	case BindAlways:
		return hasReceiver, hasScope
	case BindNever:
		return false, false
	}
	receiver = hasReceiver && flags.Has(FlagCapturesReceiver) && !flags.Has(FlagStatic)
	scope = hasScope && (flags.Has(FlagCapturesScope) || receiver)
	return receiver, scope
}
