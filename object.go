package crate

import (
	"reflect"
	"slices"
	"sort"
	"strconv"
	"unsafe"

	"go.uber.org/zap"
)

// level is one declaring type in an object's embedding chain: the struct
// itself first, then its embedded structs depth-first.
type level struct {
	key    string
	fields []objectField
	byName map[string]int
}

type objectField struct {
	name   string
	index  []int
	public bool
}

// buildLevels lays out a struct for the object codec. Exported fields
// reachable by name from the outer type are public; unexported fields
// and shadowed exported fields belong to the private bucket of the
// level that declares them.
func buildLevels(rt reflect.Type) ([]level, []int) {
	var (
		levels []level
		remain []int
	)
	seen := make(map[string]int)

	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		key := TypeName(t)
		seen[key]++
		if n := seen[key]; n > 1 {
			key += "#" + strconv.Itoa(n)
		}
		lv := level{key: key, byName: make(map[string]int)}

		var embedded []reflect.StructField
		for i := range t.NumField() {
			sf := t.Field(i)
			index := append(slices.Clone(prefix), i)
			if sf.Anonymous && sf.Type == inlineType {
				continue
			}
			opts := parseTag(fieldTag(t, sf))
			if opts.skip {
				continue
			}
			if opts.remain && remain == nil && sf.Type == remainType {
				remain = index
				continue
			}
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				sf.Index = index
				embedded = append(embedded, sf)
				continue
			}
			lv.byName[sf.Name] = len(lv.fields)
			lv.fields = append(lv.fields, objectField{
				name:   sf.Name,
				index:  index,
				public: sf.IsExported() && visible(rt, sf.Name, index),
			})
		}
		levels = append(levels, lv)

		for _, sf := range embedded {
			walk(sf.Type, sf.Index)
		}
	}
	walk(rt, nil)
	return levels, remain
}

// visible reports whether name resolves to the field at index when
// looked up on the outer type.
func visible(rt reflect.Type, name string, index []int) bool {
	sf, ok := rt.FieldByName(name)
	return ok && slices.Equal(sf.Index, index)
}

// field returns a settable view of the field at index, reaching through
// unexported fields. v must be addressable.
func field(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		v = v.Field(i)
	}
	if !v.CanSet() && v.CanAddr() {
		v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	}
	return v
}

// objectFields snapshots a struct through the object codec. v must be
// addressable.
func (e *encoder) objectFields(d *TypeDescriptor, v reflect.Value) ([]Field, []Bucket, error) {
	var (
		public  []Field
		private []Bucket
	)
	declared := make(map[string]bool)

	for _, lv := range d.levels {
		var bucket []Field
		for _, of := range lv.fields {
			n, err := e.box(field(v, of.index))
			if err != nil {
				return nil, nil, err
			}
			if of.public {
				public = append(public, Field{Name: of.name, Value: n})
				declared[of.name] = true
				continue
			}
			bucket = append(bucket, Field{Name: of.name, Value: n})
		}
		if len(bucket) > 0 {
			private = append(private, Bucket{Type: lv.key, Fields: bucket})
		}
	}

	if d.remain != nil {
		extra := field(v, d.remain)
		keys := make([]string, 0, extra.Len())
		for _, k := range extra.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			if declared[k] {
				continue
			}
			n, err := e.box(extra.MapIndex(reflect.ValueOf(k)))
			if err != nil {
				return nil, nil, err
			}
			public = append(public, Field{Name: k, Value: n})
		}
	}
	return public, private, nil
}

// applyFields restores a struct from a generic object box. obj must be
// addressable. Fields are decoded in wire order. Fields the type no
// longer declares are still decoded, as they may define nodes referenced
// elsewhere, and are then dropped or kept in the remain map.
func (d *decoder) applyFields(desc *TypeDescriptor, obj reflect.Value, b *Box) error {
	var extra reflect.Value
	if desc.remain != nil {
		extra = field(obj, desc.remain)
	}
	for _, f := range b.Fields {
		if index, ok := desc.public[f.Name]; ok {
			if err := d.decode(f.Value, valueTarget{field(obj, index)}); err != nil {
				return err
			}
			continue
		}
		if extra.IsValid() {
			if extra.IsNil() {
				extra.Set(reflect.MakeMap(remainType))
			}
			if err := d.decode(f.Value, mapTarget{m: extra, key: reflect.ValueOf(f.Name)}); err != nil {
				return err
			}
			continue
		}
		if err := d.drop(desc.Name, f); err != nil {
			return err
		}
	}

	for _, bk := range b.Private {
		lv := desc.level(bk.Type)
		for _, f := range bk.Fields {
			if lv != nil {
				if i, ok := lv.byName[f.Name]; ok {
					if err := d.decode(f.Value, valueTarget{field(obj, lv.fields[i].index)}); err != nil {
						return err
					}
					continue
				}
			}
			if err := d.drop(desc.Name, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// level returns the level declared under key, or nil.
func (d *TypeDescriptor) level(key string) *level {
	for i := range d.levels {
		if d.levels[i].key == key {
			return &d.levels[i]
		}
	}
	return nil
}

// publicIndex maps public field names to their index paths.
func publicIndex(levels []level) map[string][]int {
	public := make(map[string][]int)
	for _, lv := range levels {
		for _, of := range lv.fields {
			if of.public {
				public[of.name] = of.index
			}
		}
	}
	return public
}

// drop decodes a field nobody declares and discards the result.
func (d *decoder) drop(typeName string, f Field) error {
	d.logger.Debug("dropping undeclared field",
		zap.String("type", typeName),
		zap.String("field", f.Name),
	)
	return d.decode(f.Value, d.discard())
}
