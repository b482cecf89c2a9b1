package crate

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/zoobzio/sentinel"
)

var (
	types   = make(map[string]reflect.Type)
	names   = make(map[reflect.Type]string)
	typesMu sync.RWMutex
)

var anyType = reflect.TypeFor[any]()

// Register makes T resolvable by name when unboxing and returns that
// name. Struct types are also scanned for field metadata.
//
// Types that are boxed in the same process register themselves; an
// explicit Register is needed in processes that only unbox.
func Register[T any]() string {
	rt := reflect.TypeFor[T]()
	scan[T](rt)
	return RegisterType(rt)
}

// RegisterType registers rt under its canonical name and returns the name.
func RegisterType(rt reflect.Type) string {
	rt = baseType(rt)
	name := TypeName(rt)
	registerName(name, rt)
	return name
}

// RegisterName registers the type of v under a custom name. Boxed
// values of that type carry the custom name from then on.
func RegisterName(name string, v any) {
	rt := baseType(reflect.TypeOf(v))
	registerName(name, rt)

	typesMu.Lock()
	names[rt] = name
	typesMu.Unlock()
}

func registerName(name string, rt reflect.Type) {
	// Fast path: already registered
	typesMu.RLock()
	existing, ok := types[name]
	typesMu.RUnlock()
	if ok && existing == rt {
		return
	}

	typesMu.Lock()
	defer typesMu.Unlock()
	types[name] = rt
}

// baseType strips one pointer level from pointers to named types.
func baseType(rt reflect.Type) reflect.Type {
	if rt.Kind() == reflect.Pointer && rt.Name() == "" && rt.Elem().Name() != "" {
		return rt.Elem()
	}
	return rt
}

// TypeName returns the name a type is written under. Named types use
// their import path and name; composite types use Go syntax built from
// the names of their parts, so they resolve without registration.
func TypeName(rt reflect.Type) string {
	typesMu.RLock()
	name, ok := names[rt]
	typesMu.RUnlock()
	if ok {
		return name
	}

	if rt.Name() != "" {
		if rt.PkgPath() == "" {
			return rt.Name()
		}
		return rt.PkgPath() + "." + rt.Name()
	}

	switch rt.Kind() {
	case reflect.Pointer:
		return "*" + TypeName(rt.Elem())
	case reflect.Slice:
		return "[]" + TypeName(rt.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(rt.Len()) + "]" + TypeName(rt.Elem())
	case reflect.Map:
		return "map[" + TypeName(rt.Key()) + "]" + TypeName(rt.Elem())
	case reflect.Interface:
		if rt.NumMethod() == 0 {
			return "any"
		}
	case reflect.Struct:
		return anonymousName(rt)
	}
	return rt.String()
}

// anonymousName gives unnamed struct types a stable synthetic name
// derived from their shape.
func anonymousName(rt reflect.Type) string {
	sum, _ := SHA256Hasher().Hash([]byte(rt.String())) // #nosec G104 -- sha256 never fails
	return "anon＠" + sum[:16]
}

// ResolveType maps a type name back to a Go type. Registered names win;
// otherwise pointer, slice, array and map names are parsed recursively.
func ResolveType(name string) (reflect.Type, bool) {
	typesMu.RLock()
	rt, ok := types[name]
	typesMu.RUnlock()
	if ok {
		return rt, true
	}
	return parseType(name)
}

func parseType(name string) (reflect.Type, bool) {
	switch {
	case name == "any" || name == "interface {}":
		return anyType, true

	case strings.HasPrefix(name, "*"):
		elem, ok := ResolveType(name[1:])
		if !ok {
			return nil, false
		}
		return reflect.PointerTo(elem), true

	case strings.HasPrefix(name, "[]"):
		elem, ok := ResolveType(name[2:])
		if !ok {
			return nil, false
		}
		return reflect.SliceOf(elem), true

	case strings.HasPrefix(name, "["):
		end := strings.IndexByte(name, ']')
		if end < 0 {
			return nil, false
		}
		n, err := strconv.Atoi(name[1:end])
		if err != nil || n < 0 {
			return nil, false
		}
		elem, ok := ResolveType(name[end+1:])
		if !ok {
			return nil, false
		}
		return reflect.ArrayOf(n, elem), true

	case strings.HasPrefix(name, "map["):
		depth := 0
		for i := 3; i < len(name); i++ {
			switch name[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth != 0 {
					continue
				}
				key, ok := ResolveType(name[4:i])
				if !ok || !key.Comparable() {
					return nil, false
				}
				elem, ok := ResolveType(name[i+1:])
				if !ok {
					return nil, false
				}
				return reflect.MapOf(key, elem), true
			}
		}
	}
	return nil, false
}

// remember registers named types as they are boxed so that a process can
// unbox what it produced without explicit registration.
func remember(rt reflect.Type) string {
	name := TypeName(rt)
	if rt.Name() != "" || rt.Kind() == reflect.Struct {
		registerName(name, rt)
	}
	return name
}

// Reset clears all registrations, descriptors, adapters and exclusions,
// then reinstalls the built-in types and adapters.
// This is primarily useful for test isolation.
func Reset() {
	typesMu.Lock()
	types = make(map[string]reflect.Type)
	names = make(map[reflect.Type]string)
	typesMu.Unlock()

	descriptorsMu.Lock()
	descriptors = make(map[reflect.Type]*TypeDescriptor)
	adapters = make(map[reflect.Type]*Adapter)
	excluded = make(map[reflect.Type]bool)
	metadata = make(map[reflect.Type]sentinel.Metadata)
	descriptorsMu.Unlock()

	installBuiltins()
}
