package crate

import (
	"container/list"
	"encoding"
	"fmt"
	"math/big"
	"net/netip"
	"net/url"
	"reflect"
	"time"
)

var (
	binaryMarshalerType   = reflect.TypeFor[encoding.BinaryMarshaler]()
	binaryUnmarshalerType = reflect.TypeFor[encoding.BinaryUnmarshaler]()
	textMarshalerType     = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType   = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func init() {
	installBuiltins()
}

// installBuiltins registers the names every process can resolve without
// calling Register, and the adapters for standard library types that
// need more than their marshalers.
func installBuiltins() {
	for _, rt := range []reflect.Type{
		reflect.TypeFor[bool](),
		reflect.TypeFor[int](),
		reflect.TypeFor[int8](),
		reflect.TypeFor[int16](),
		reflect.TypeFor[int32](),
		reflect.TypeFor[int64](),
		reflect.TypeFor[uint](),
		reflect.TypeFor[uint8](),
		reflect.TypeFor[uint16](),
		reflect.TypeFor[uint32](),
		reflect.TypeFor[uint64](),
		reflect.TypeFor[uintptr](),
		reflect.TypeFor[float32](),
		reflect.TypeFor[float64](),
		reflect.TypeFor[complex64](),
		reflect.TypeFor[complex128](),
		reflect.TypeFor[string](),
		reflect.TypeFor[error](),
		reflect.TypeFor[time.Time](),
		reflect.TypeFor[time.Duration](),
		reflect.TypeFor[time.Month](),
		reflect.TypeFor[time.Weekday](),
		reflect.TypeFor[time.Location](),
		reflect.TypeFor[list.List](),
		reflect.TypeFor[url.URL](),
		reflect.TypeFor[url.Userinfo](),
		reflect.TypeFor[netip.Addr](),
		reflect.TypeFor[netip.Prefix](),
		reflect.TypeFor[netip.AddrPort](),
		reflect.TypeFor[big.Int](),
		reflect.TypeFor[big.Float](),
		reflect.TypeFor[big.Rat](),
	} {
		registerName(TypeName(rt), rt)
	}

	descriptorsMu.Lock()
	adapters[reflect.TypeFor[time.Location]()] = &locationAdapter
	adapters[reflect.TypeFor[list.List]()] = &listAdapter
	descriptorsMu.Unlock()
}

// locationAdapter writes a location by name and loads it from the zone
// database on the way back.
var locationAdapter = Adapter{
	Box: func(v any) (map[string]any, error) {
		return map[string]any{"name": v.(*time.Location).String()}, nil
	},
	Unbox: func(mark Mark) (any, error) {
		fields, err := mark(nil)
		if err != nil {
			return nil, err
		}
		name, _ := fields["name"].(string)
		return time.LoadLocation(name)
	},
}

// listAdapter writes a list.List as the slice of its element values.
// Elements referring to values that are still being built stay nil. A
// list's elements point back at its root, so it is only boxed by pointer.
var listAdapter = Adapter{
	ByPointer: true,
	Box: func(v any) (map[string]any, error) {
		l := v.(*list.List)
		items := make([]any, 0, l.Len())
		for e := l.Front(); e != nil; e = e.Next() {
			items = append(items, e.Value)
		}
		return map[string]any{"items": items}, nil
	},
	Unbox: func(mark Mark) (any, error) {
		l := list.New()
		fields, err := mark(l)
		if err != nil {
			return nil, err
		}
		items, _ := fields["items"].([]any)
		for _, item := range items {
			l.PushBack(item)
		}
		return l, nil
	},
}

// marshalerAdapter builds an adapter for a standard library type from its
// binary or text marshalers. It returns nil when *T has neither pair.
func marshalerAdapter(rt reflect.Type) *Adapter {
	ptr := reflect.PointerTo(rt)
	switch {
	case ptr.Implements(binaryMarshalerType) && ptr.Implements(binaryUnmarshalerType):
		return &Adapter{
			Box: func(v any) (map[string]any, error) {
				data, err := v.(encoding.BinaryMarshaler).MarshalBinary()
				if err != nil {
					return nil, err
				}
				return map[string]any{"binary": data}, nil
			},
			Unbox: func(mark Mark) (any, error) {
				p := reflect.New(rt).Interface()
				fields, err := mark(p)
				if err != nil {
					return nil, err
				}
				data, ok := fields["binary"].([]byte)
				if !ok {
					return nil, fmt.Errorf("missing binary form of %s", rt)
				}
				return p, p.(encoding.BinaryUnmarshaler).UnmarshalBinary(data)
			},
		}

	case ptr.Implements(textMarshalerType) && ptr.Implements(textUnmarshalerType):
		return &Adapter{
			Box: func(v any) (map[string]any, error) {
				text, err := v.(encoding.TextMarshaler).MarshalText()
				if err != nil {
					return nil, err
				}
				return map[string]any{"text": string(text)}, nil
			},
			Unbox: func(mark Mark) (any, error) {
				p := reflect.New(rt).Interface()
				fields, err := mark(p)
				if err != nil {
					return nil, err
				}
				text, ok := fields["text"].(string)
				if !ok {
					return nil, fmt.Errorf("missing text form of %s", rt)
				}
				return p, p.(encoding.TextUnmarshaler).UnmarshalText([]byte(text))
			},
		}
	}
	return nil
}
