package crate

import "reflect"

// Clone deep-copies v by boxing and unboxing it without encoding.
// Sharing and cycles inside v are preserved in the copy. Closures need a
// Loader, as they would for Unserialize.
func (s *Serializer) Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	dst := reflect.New(reflect.TypeOf(v))
	if err := s.cloneInto(v, dst.Interface()); err != nil {
		return nil, err
	}
	return dst.Elem().Interface(), nil
}

// Clone is the typed form of (*Serializer).Clone.
func Clone[T any](s *Serializer, v T) (T, error) {
	var out T
	err := s.cloneInto(v, &out)
	return out, err
}

func (s *Serializer) cloneInto(v, dst any) error {
	tree, err := s.Box(v)
	if err != nil {
		return err
	}
	return s.UnboxInto(tree, dst)
}
