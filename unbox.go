package crate

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"go.uber.org/zap"
)

// decoder rebuilds values from an encodable tree. It works on the tree
// as read from the wire: the first occurrence of an ID defines the
// value, later ref nodes resolve to it. References to values that are
// not finished yet are parked and patched when the value completes.
type decoder struct {
	tracker  *unboxTracker
	loader   Loader
	maxDepth int
	logger   *zap.Logger
	depth    int

	// copies holds the pending copy-outs of by-value composites being
	// built in temporaries, innermost last.
	copies []func() error

	boxes int
	funcs int
}

// run decodes root into dst, resolving the ordering wrapper first.
func (d *decoder) run(root *Node, dst reflect.Value) error {
	if root != nil && root.Kind == KindOrdered {
		for _, item := range root.Items {
			if err := d.decode(item, d.discard()); err != nil {
				return err
			}
		}
		root = root.Elem
	}
	if err := d.decode(root, valueTarget{dst}); err != nil {
		return err
	}
	return d.tracker.close()
}

func (d *decoder) discard() target {
	return valueTarget{reflect.New(anyType).Elem()}
}

func (d *decoder) decode(n *Node, dst target) error {
	if n == nil {
		return dst.set(reflect.Value{})
	}
	if d.depth >= d.maxDepth {
		return fmt.Errorf("%w (%d)", ErrDepthExceeded, d.maxDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	switch n.Kind {
	case KindNil:
		return dst.set(reflect.Value{})
	case KindRef:
		return d.ref(n.Ref, dst)
	case KindOrdered:
		return newMalformed(n.Kind, "ordering wrapper below the root")
	}

	t, err := d.typeOf(n, dst.typ())
	if err != nil {
		return err
	}
	if t != nil && byValue(n, t) {
		return d.decodeValue(n, t, dst)
	}
	v, err := d.build(n, t)
	if err != nil {
		return err
	}
	return dst.set(v)
}

func (d *decoder) ref(id uint64, dst target) error {
	if id == 0 {
		return newMalformed(KindRef, "missing target id")
	}
	if len(d.copies) > 0 {
		dst = copyTarget{target: dst, after: slices.Clone(d.copies)}
	}
	return d.tracker.resolve(id, dst)
}

// byValue reports whether n decodes to a value type whose fields are
// filled in place.
func byValue(n *Node, t reflect.Type) bool {
	switch n.Kind {
	case KindList:
		return t.Kind() == reflect.Array
	case KindInline:
		return t.Kind() == reflect.Struct
	case KindBox:
		return n.Box.Kind == BoxObject && t.Kind() == reflect.Struct
	}
	return false
}

// decodeValue fills a value type directly in its destination when
// possible, otherwise in a temporary that is copied out.
func (d *decoder) decodeValue(n *Node, t reflect.Type, dst target) error {
	if vt, ok := dst.(valueTarget); ok && vt.v.Type() == t {
		return d.fill(n, vt.v)
	}
	temp := reflect.New(t).Elem()
	d.copies = append(d.copies, func() error { return dst.set(temp) })
	err := d.fill(n, temp)
	d.copies = d.copies[:len(d.copies)-1]
	if err != nil {
		return err
	}
	return dst.set(temp)
}

// fill decodes a by-value node into the addressable value v.
func (d *decoder) fill(n *Node, v reflect.Value) error {
	switch n.Kind {
	case KindList:
		if len(n.Items) > v.Len() {
			return newMalformed(n.Kind, "%d items do not fit %s", len(n.Items), v.Type())
		}
		for i, item := range n.Items {
			if err := d.decode(item, valueTarget{v.Index(i)}); err != nil {
				return err
			}
		}
		return nil
	case KindInline:
		return d.fillInline(n.Fields, v)
	}
	desc := Describe(v.Type())
	if err := d.fillObject(n.Box, desc, v.Addr()); err != nil {
		return err
	}
	d.boxes++
	return nil
}

// typeOf picks the Go type a node is rebuilt as. want is the type of
// the destination; interface destinations defer to the node.
func (d *decoder) typeOf(n *Node, want reflect.Type) (reflect.Type, error) {
	switch n.Kind {
	case KindBool, KindInt, KindUint, KindFloat, KindComplex, KindString, KindBytes, KindList:
		return d.concrete(n, want, naturalTypes[n.Kind]), nil
	case KindMap:
		natural := mapType
		for _, e := range n.Entries {
			if e.Key == nil || e.Key.Kind != KindString || e.Key.Type != "" {
				natural = anyMapType
				break
			}
		}
		return d.concrete(n, want, natural), nil
	case KindPtr:
		return d.concrete(n, want, reflect.PointerTo(anyType)), nil
	case KindInline:
		return d.concrete(n, want, mapType), nil
	case KindBox:
		if n.Box == nil {
			return nil, newMalformed(n.Kind, "missing box")
		}
		switch n.Box.Kind {
		case BoxObject:
			rt, ok := ResolveType(n.Box.Type)
			if !ok || rt.Kind() != reflect.Struct {
				return nil, &UnresolvableTypeError{Type: n.Box.Type}
			}
			if n.Box.ByValue {
				return rt, nil
			}
			return reflect.PointerTo(rt), nil
		case BoxClosure:
			return funcPtrType, nil
		case BoxCallable:
			return nil, nil
		}
		return nil, newMalformed(n.Kind, "unknown box kind %q", n.Box.Kind)
	}
	return nil, newMalformed(n.Kind, "unknown node kind")
}

// concrete prefers a concrete destination type, then the node's own type
// name, then the natural type of the kind.
func (d *decoder) concrete(n *Node, want, natural reflect.Type) reflect.Type {
	if want != nil && want.Kind() != reflect.Interface && fits(n.Kind, want) {
		return want
	}
	if n.Type != "" {
		if rt, ok := ResolveType(n.Type); ok && fits(n.Kind, rt) {
			return rt
		}
		d.logger.Debug("falling back to natural type", zap.String("type", n.Type), zap.String("kind", string(n.Kind)))
	}
	return natural
}

func fits(k Kind, t reflect.Type) bool {
	switch k {
	case KindBool:
		return t.Kind() == reflect.Bool
	case KindInt, KindUint, KindFloat:
		return isReal(t.Kind())
	case KindComplex:
		return t.Kind() == reflect.Complex64 || t.Kind() == reflect.Complex128
	case KindString:
		return t.Kind() == reflect.String
	case KindBytes:
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
	case KindList:
		return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
	case KindMap:
		return t.Kind() == reflect.Map
	case KindPtr:
		return t.Kind() == reflect.Pointer
	case KindInline:
		return t.Kind() == reflect.Struct || (t.Kind() == reflect.Map && t.Key().Kind() == reflect.String)
	}
	return false
}

// build rebuilds nodes that decode to reference types or scalars.
func (d *decoder) build(n *Node, t reflect.Type) (reflect.Value, error) {
	switch n.Kind {
	case KindBool, KindInt, KindUint, KindFloat, KindComplex, KindString:
		return scalarValue(n, t)
	case KindBytes:
		v := reflect.New(t).Elem()
		v.SetBytes(slices.Clone(n.Bytes))
		return v, nil
	case KindList:
		return d.buildSlice(n, t)
	case KindMap:
		return d.buildMap(n, t)
	case KindPtr:
		return d.buildPtr(n, t)
	case KindInline:
		return d.buildInlineMap(n, t)
	}

	switch n.Box.Kind {
	case BoxClosure:
		return d.buildClosure(n)
	case BoxCallable:
		return d.buildCallable(n)
	}
	return d.buildObject(n, t)
}

// open registers a node with identity and publishes its value at once;
// containers exist before their contents.
func (d *decoder) open(id uint64, v reflect.Value) error {
	if id == 0 {
		return nil
	}
	if err := d.tracker.begin(id); err != nil {
		return err
	}
	return d.tracker.publish(id, v)
}

func (d *decoder) close(id uint64, v reflect.Value) error {
	if id == 0 {
		return nil
	}
	return d.tracker.finish(id, v)
}

func (d *decoder) buildSlice(n *Node, t reflect.Type) (reflect.Value, error) {
	s := reflect.MakeSlice(t, len(n.Items), len(n.Items))
	if err := d.open(n.ID, s); err != nil {
		return reflect.Value{}, err
	}
	for i, item := range n.Items {
		if err := d.decode(item, valueTarget{s.Index(i)}); err != nil {
			return reflect.Value{}, err
		}
	}
	return s, d.close(n.ID, s)
}

func (d *decoder) buildMap(n *Node, t reflect.Type) (reflect.Value, error) {
	m := reflect.MakeMapWithSize(t, len(n.Entries))
	if err := d.open(n.ID, m); err != nil {
		return reflect.Value{}, err
	}
	for _, e := range n.Entries {
		key, err := d.mapKey(e.Key, t.Key())
		if err != nil {
			return reflect.Value{}, err
		}
		if err := d.decode(e.Value, mapTarget{m: m, key: key}); err != nil {
			return reflect.Value{}, err
		}
	}
	return m, d.close(n.ID, m)
}

// mapKey decodes a key, which must be complete: a key cannot be patched
// after insertion.
func (d *decoder) mapKey(n *Node, kt reflect.Type) (reflect.Value, error) {
	if n != nil && n.Kind == KindRef && !d.tracker.ready(n.Ref) {
		return reflect.Value{}, newMalformed(KindMap, "key refers to a value still being built")
	}
	k := reflect.New(kt).Elem()
	parked := d.tracker.parked
	if err := d.decode(n, valueTarget{k}); err != nil {
		return reflect.Value{}, err
	}
	kv := k
	if kv.Kind() == reflect.Interface {
		kv = kv.Elem()
	}
	// A key holding a reference may still be filled in place; a key
	// copied by value cannot.
	if d.tracker.parked != parked && !(kv.IsValid() && kv.Kind() == reflect.Pointer) {
		return reflect.Value{}, newMalformed(KindMap, "key refers to a value still being built")
	}
	if kv.IsValid() && !kv.Comparable() {
		return reflect.Value{}, newMalformed(KindMap, "key of type %s is not comparable", kv.Type())
	}
	return k, nil
}

func (d *decoder) buildPtr(n *Node, t reflect.Type) (reflect.Value, error) {
	p := reflect.New(t.Elem())
	if err := d.open(n.ID, p); err != nil {
		return reflect.Value{}, err
	}
	if err := d.decode(n.Elem, valueTarget{p.Elem()}); err != nil {
		return reflect.Value{}, err
	}
	return p, d.close(n.ID, p)
}

// fillInline sets the exported fields of struct v by name. Fields the
// struct does not have are decoded and dropped.
func (d *decoder) fillInline(fields []Field, v reflect.Value) error {
	rt := v.Type()
	for _, f := range fields {
		sf, ok := rt.FieldByName(f.Name)
		if ok && sf.IsExported() {
			if fv, err := v.FieldByIndexErr(sf.Index); err == nil {
				if err := d.decode(f.Value, valueTarget{field(fv, nil)}); err != nil {
					return err
				}
				continue
			}
		}
		if err := d.drop(TypeName(rt), f); err != nil {
			return err
		}
	}
	return nil
}

// buildInlineMap is used when an inline struct's type is unknown here.
func (d *decoder) buildInlineMap(n *Node, t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
		return reflect.Value{}, newMalformed(n.Kind, "cannot decode into %s", t)
	}
	m := reflect.MakeMapWithSize(t, len(n.Fields))
	for _, f := range n.Fields {
		key := reflect.ValueOf(f.Name).Convert(t.Key())
		if err := d.decode(f.Value, mapTarget{m: m, key: key}); err != nil {
			return reflect.Value{}, err
		}
	}
	return m, nil
}

func (d *decoder) buildObject(n *Node, t reflect.Type) (reflect.Value, error) {
	desc := Describe(t.Elem())
	d.boxes++

	if desc.Adapter != nil {
		if n.ID != 0 {
			if err := d.tracker.begin(n.ID); err != nil {
				return reflect.Value{}, err
			}
		}
		p, err := d.adapterUnbox(n.ID, n.Box, desc)
		if err != nil {
			return reflect.Value{}, err
		}
		return p, d.close(n.ID, p)
	}

	p := reflect.New(t.Elem())
	if err := d.open(n.ID, p); err != nil {
		return reflect.Value{}, err
	}
	if err := d.fillObject(n.Box, desc, p); err != nil {
		return reflect.Value{}, err
	}
	return p, d.close(n.ID, p)
}

// fillObject restores an object box into the struct p points to.
func (d *decoder) fillObject(b *Box, desc *TypeDescriptor, p reflect.Value) error {
	switch {
	case desc.Adapter != nil:
		if b.ByValue && desc.Adapter.ByPointer {
			return newMalformed(KindBox, "%s cannot be held by value", desc.Name)
		}
		out, err := d.adapterUnbox(0, b, desc)
		if err != nil {
			return err
		}
		p.Elem().Set(out.Elem())
		return nil
	case desc.HasHook:
		fields, err := d.fieldMap(b.Fields)
		if err != nil {
			return err
		}
		if err := p.Interface().(Unboxer).UnboxFields(fields); err != nil {
			return fmt.Errorf("unbox %s: %w", desc.Name, err)
		}
		return nil
	case !desc.Boxable:
		return newMalformed(KindBox, "type %s is not boxable", desc.Name)
	}
	return d.applyFields(desc, p.Elem(), b)
}

// adapterUnbox runs an adapter's Unbox. Fields are decoded even if the
// adapter never calls mark, so nodes defined inside them still exist.
func (d *decoder) adapterUnbox(id uint64, b *Box, desc *TypeDescriptor) (reflect.Value, error) {
	var (
		marked  bool
		fields  map[string]any
		markErr error
	)
	mark := func(instance any) (map[string]any, error) {
		if marked {
			return fields, markErr
		}
		marked = true
		if instance != nil && id != 0 {
			if markErr = d.tracker.publish(id, reflect.ValueOf(instance)); markErr != nil {
				return nil, markErr
			}
		}
		fields, markErr = d.fieldMap(b.Fields)
		return fields, markErr
	}

	out, err := desc.Adapter.Unbox(mark)
	if markErr != nil {
		return reflect.Value{}, markErr
	}
	if err != nil {
		return reflect.Value{}, fmt.Errorf("unbox %s: %w", desc.Name, err)
	}
	if !marked {
		if _, err := mark(nil); err != nil {
			return reflect.Value{}, err
		}
	}

	rv := reflect.ValueOf(out)
	if !rv.IsValid() || rv.Type() != reflect.PointerTo(desc.Type) || rv.IsNil() {
		return reflect.Value{}, newMalformed(KindBox, "adapter for %s returned %T", desc.Name, out)
	}
	return rv, nil
}

// fieldMap unboxes a field list into a map. Entries that refer to values
// still being built are filled in when those values finish.
func (d *decoder) fieldMap(fields []Field) (map[string]any, error) {
	m := make(map[string]any, len(fields))
	mv := reflect.ValueOf(m)
	for _, f := range fields {
		if err := d.decode(f.Value, mapTarget{m: mv, key: reflect.ValueOf(f.Name)}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (d *decoder) buildClosure(n *Node) (reflect.Value, error) {
	if d.loader == nil {
		return reflect.Value{}, ErrNoLoader
	}
	b := n.Box
	code, err := d.code(b)
	if err != nil {
		return reflect.Value{}, err
	}
	if n.ID != 0 {
		if err := d.tracker.begin(n.ID); err != nil {
			return reflect.Value{}, err
		}
	}

	recv, err := d.receiver(b)
	if err != nil {
		return reflect.Value{}, err
	}
	vars, err := d.fieldMap(b.Vars)
	if err != nil {
		return reflect.Value{}, err
	}

	fn, err := d.loader.Load(code, vars)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("load closure: %w", err)
	}
	if recv != nil || b.Scope != "" {
		if fn, err = d.loader.Bind(fn, recv, b.Scope); err != nil {
			return reflect.Value{}, fmt.Errorf("bind closure: %w", err)
		}
	}
	if fn == nil {
		return reflect.Value{}, newMalformed(KindBox, "loader returned no function")
	}

	d.funcs++
	v := reflect.ValueOf(fn)
	return v, d.close(n.ID, v)
}

func (d *decoder) buildCallable(n *Node) (reflect.Value, error) {
	if d.loader == nil {
		return reflect.Value{}, ErrNoLoader
	}
	b := n.Box
	if b.Ref == "" {
		return reflect.Value{}, newMalformed(KindBox, "callable without a name")
	}
	if n.ID != 0 {
		if err := d.tracker.begin(n.ID); err != nil {
			return reflect.Value{}, err
		}
	}

	recv, err := d.receiver(b)
	if err != nil {
		return reflect.Value{}, err
	}
	out, err := d.loader.Resolve(b.Ref, recv)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("resolve %q: %w", b.Ref, err)
	}
	v := reflect.ValueOf(out)
	if !v.IsValid() {
		return reflect.Value{}, newMalformed(KindBox, "loader resolved %q to nil", b.Ref)
	}

	d.funcs++
	return v, d.close(n.ID, v)
}

// receiver decodes the bound receiver of a function box. The receiver
// is needed right away, so a reference to it must already have a value.
func (d *decoder) receiver(b *Box) (any, error) {
	if b.Receiver == nil {
		return nil, nil
	}
	if b.Receiver.Kind == KindRef && !d.tracker.ready(b.Receiver.Ref) {
		return nil, newMalformed(KindBox, "receiver refers to a value still being built")
	}
	var recv any
	if err := d.decode(b.Receiver, valueTarget{reflect.ValueOf(&recv).Elem()}); err != nil {
		return nil, err
	}
	return recv, nil
}

func (d *decoder) code(b *Box) (CodeDescriptor, error) {
	if b.Code != nil {
		if b.CodeID != 0 {
			d.tracker.codes[b.CodeID] = b.Code
		}
		return *b.Code, nil
	}
	if b.CodeID != 0 {
		if c, ok := d.tracker.codes[b.CodeID]; ok {
			return *c, nil
		}
	}
	return CodeDescriptor{}, newMalformed(KindBox, "closure without code")
}

// scalarValue builds a scalar of type t from n.
func scalarValue(n *Node, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, newMalformed(n.Kind, "cannot decode into %s", t)
	}

	switch n.Kind {
	case KindBool:
		if t.Kind() != reflect.Bool {
			return mismatch()
		}
		v.SetBool(n.Bool)
	case KindString:
		if t.Kind() != reflect.String {
			return mismatch()
		}
		v.SetString(n.Str)
	case KindComplex:
		if t.Kind() != reflect.Complex64 && t.Kind() != reflect.Complex128 {
			return mismatch()
		}
		v.SetComplex(complex(n.Float, n.Imag))
	default:
		if !isReal(t.Kind()) {
			return mismatch()
		}
		if err := setReal(v, n); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}

// setReal stores the number held by n in v. Values that would be
// truncated, wrapped or change sign are rejected.
func setReal(v reflect.Value, n *Node) error {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := n.asInt(); ok && !v.OverflowInt(i) {
			v.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u, ok := n.asUint(); ok && !v.OverflowUint(u) {
			v.SetUint(u)
			return nil
		}
	default:
		if f := n.asFloat(); !v.OverflowFloat(f) {
			v.SetFloat(f)
			return nil
		}
	}
	return newMalformed(n.Kind, "%s does not fit %s", n.number(), v.Type())
}

func (n *Node) number() string {
	switch n.Kind {
	case KindInt:
		return strconv.FormatInt(n.Int, 10)
	case KindUint:
		return strconv.FormatUint(n.Uint, 10)
	}
	return strconv.FormatFloat(n.Float, 'g', -1, 64)
}

// Float bounds of the 64-bit integer ranges, both exact powers of two.
const (
	twoTo63 = float64(1 << 63)
	twoTo64 = twoTo63 * 2
)

func (n *Node) asInt() (int64, bool) {
	switch n.Kind {
	case KindUint:
		if n.Uint > math.MaxInt64 {
			return 0, false
		}
		return int64(n.Uint), true
	case KindFloat:
		f := n.Float
		if f != math.Trunc(f) || f < -twoTo63 || f >= twoTo63 {
			return 0, false
		}
		return int64(f), true
	}
	return n.Int, true
}

func (n *Node) asUint() (uint64, bool) {
	switch n.Kind {
	case KindInt:
		if n.Int < 0 {
			return 0, false
		}
		return uint64(n.Int), true
	case KindFloat:
		f := n.Float
		if f != math.Trunc(f) || f < 0 || f >= twoTo64 {
			return 0, false
		}
		return uint64(f), true
	}
	return n.Uint, true
}

func (n *Node) asFloat() float64 {
	switch n.Kind {
	case KindInt:
		return float64(n.Int)
	case KindUint:
		return float64(n.Uint)
	}
	return n.Float
}
