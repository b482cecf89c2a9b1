package crate

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/zoobzio/sentinel"
)

// tagName is the struct tag read by the object codec.
const tagName = "crate"

func init() {
	sentinel.Tag(tagName)
}

// TypeDescriptor is the cached boxing plan for a struct type.
type TypeDescriptor struct {
	Name     string       // Name written into boxes
	Type     reflect.Type // The struct type itself, never a pointer
	Boxable  bool         // Boxed as an object; otherwise written inline
	HasHook  bool         // *T implements Boxer and Unboxer
	Opaque   bool         // Declared in the standard library
	Resource bool         // Opaque handle to an external resource; refused
	Adapter  *Adapter     // Registered or built-in adapter, if any
	Err      error        // Set when the type could not be inspected

	levels []level
	public map[string][]int
	remain []int
}

var (
	descriptors   = make(map[reflect.Type]*TypeDescriptor)
	adapters      = make(map[reflect.Type]*Adapter)
	excluded      = make(map[reflect.Type]bool)
	metadata      = make(map[reflect.Type]sentinel.Metadata)
	descriptorsMu sync.RWMutex
)

var (
	boxerType   = reflect.TypeFor[Boxer]()
	unboxerType = reflect.TypeFor[Unboxer]()
	closerType  = reflect.TypeFor[io.Closer]()
	inlineType  = reflect.TypeFor[Inline]()
	remainType  = reflect.TypeFor[map[string]any]()
)

// Describe returns the descriptor for a struct type, computing and
// caching it on first use. Pointer types are described by their element.
func Describe(rt reflect.Type) *TypeDescriptor {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	// Fast path: read-lock cache check
	descriptorsMu.RLock()
	if d, ok := descriptors[rt]; ok {
		descriptorsMu.RUnlock()
		return d
	}
	descriptorsMu.RUnlock()

	// Slow path: build and cache with write-lock
	descriptorsMu.Lock()
	d, ok := descriptors[rt]
	if !ok {
		d = buildDescriptor(rt)
		descriptors[rt] = d
	}
	descriptorsMu.Unlock()

	if !ok {
		if rt.Kind() == reflect.Struct {
			registerName(d.Name, rt)
		}
		if d.Err != nil {
			emitTypeFailOpen(context.Background(), d.Name, d.Err)
		}
	}
	return d
}

// buildDescriptor must be called with descriptorsMu held. A panic while
// inspecting the type degrades it to inline instead of failing the
// whole operation.
func buildDescriptor(rt reflect.Type) (d *TypeDescriptor) {
	d = &TypeDescriptor{Name: TypeName(rt), Type: rt, Opaque: isOpaque(rt)}
	defer func() {
		if r := recover(); r != nil {
			d.Boxable = false
			d.HasHook = false
			d.Adapter = nil
			d.levels = nil
			d.public = nil
			d.remain = nil
			d.Err = fmt.Errorf("describe %s: %v", d.Name, r)
		}
	}()

	ptr := reflect.PointerTo(rt)
	if a, ok := adapters[rt]; ok {
		d.Adapter = a
	} else if d.Opaque {
		d.Adapter = marshalerAdapter(rt)
	}
	if !d.Opaque {
		d.HasHook = ptr.Implements(boxerType) && ptr.Implements(unboxerType)
	}

	switch {
	case excluded[rt] || embedsInline(rt):
		d.Boxable = false
	case d.Adapter != nil:
		d.Boxable = true
	case d.Opaque:
		d.Resource = ptr.Implements(closerType)
	default:
		d.Boxable = rt.Kind() == reflect.Struct
	}

	if d.Boxable && d.Adapter == nil && !d.HasHook {
		d.levels, d.remain = buildLevels(rt)
		d.public = publicIndex(d.levels)
	}
	return d
}

// isOpaque reports whether rt comes from the standard library, whose
// internals are not ours to rebuild field by field. Standard library
// import paths have no dot in their first element.
func isOpaque(rt reflect.Type) bool {
	pkg := rt.PkgPath()
	if pkg == "" || pkg == "main" {
		return false
	}
	first, _, _ := strings.Cut(pkg, "/")
	return !strings.Contains(first, ".")
}

func embedsInline(rt reflect.Type) bool {
	if rt.Kind() != reflect.Struct {
		return false
	}
	for i := range rt.NumField() {
		if f := rt.Field(i); f.Anonymous && f.Type == inlineType {
			return true
		}
	}
	return false
}

// RegisterAdapter installs a custom adapter for T, replacing any cached
// descriptor. T is also registered by name.
func RegisterAdapter[T any](a Adapter) {
	RegisterAdapterType(reflect.TypeFor[T](), a)
}

// RegisterAdapterType is RegisterAdapter for a reflect.Type.
func RegisterAdapterType(rt reflect.Type, a Adapter) {
	rt = baseType(rt)
	descriptorsMu.Lock()
	adapters[rt] = &a
	delete(descriptors, rt)
	descriptorsMu.Unlock()

	RegisterType(rt)
}

// Exclude opts T out of boxing. Values of T are written inline.
func Exclude[T any]() {
	ExcludeType(reflect.TypeFor[T]())
}

// ExcludeType is Exclude for a reflect.Type.
func ExcludeType(rt reflect.Type) {
	rt = baseType(rt)
	descriptorsMu.Lock()
	excluded[rt] = true
	delete(descriptors, rt)
	descriptorsMu.Unlock()
}

// scan stores the sentinel metadata of a struct type and drops its cached
// descriptor so the layout is rebuilt from the metadata. Sentinel caches
// by bare type name, so metadata that does not describe rt is discarded.
func scan[T any](rt reflect.Type) {
	if rt.Kind() != reflect.Struct {
		return
	}
	md, err := sentinel.TryScan[T]()
	if err != nil || !describes(md, rt) {
		return
	}
	descriptorsMu.Lock()
	metadata[rt] = md
	delete(descriptors, rt)
	descriptorsMu.Unlock()
}

func describes(md sentinel.Metadata, rt reflect.Type) bool {
	if md.PackageName != rt.PkgPath() || md.TypeName != rt.Name() {
		return false
	}
	for _, fm := range md.Fields {
		if len(fm.Index) != 1 || fm.Index[0] >= rt.NumField() {
			return false
		}
		sf := rt.Field(fm.Index[0])
		if sf.Name != fm.Name || sf.Type != fm.ReflectType || sf.Tag.Get(tagName) != fm.Tags[tagName] {
			return false
		}
	}
	return true
}

// fieldTag returns the crate tag of a field. Exported fields of scanned
// types are read from the stored metadata; everything else falls back to
// the raw struct tag. Must be called with descriptorsMu held.
func fieldTag(owner reflect.Type, sf reflect.StructField) string {
	if md, ok := metadata[owner]; ok && sf.IsExported() {
		for _, fm := range md.Fields {
			if slices.Equal(fm.Index, sf.Index) {
				return fm.Tags[tagName]
			}
		}
	}
	return sf.Tag.Get(tagName)
}

type tagOptions struct {
	skip   bool
	remain bool
}

func parseTag(tag string) tagOptions {
	if tag == "-" {
		return tagOptions{skip: true}
	}
	var opts tagOptions
	_, rest, _ := strings.Cut(tag, ",")
	for _, opt := range strings.Split(rest, ",") {
		if strings.TrimSpace(opt) == "remain" {
			opts.remain = true
		}
	}
	return opts
}
