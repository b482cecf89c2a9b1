package cbor

import (
	"reflect"
	"testing"

	"github.com/zoobzio/crate"
)

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Error("New() should return non-nil codec")
	}
}

func TestContentType(t *testing.T) {
	c := New()
	if c.ContentType() != "application/cbor" {
		t.Errorf("ContentType() = %q, want %q", c.ContentType(), "application/cbor")
	}
}

// sampleTree is a self-referencing map holding a closure, wrapped in the
// ordering node, the shape Serialize hands to a codec.
func sampleTree() *crate.Node {
	return &crate.Node{
		Kind: crate.KindOrdered,
		Items: []*crate.Node{{
			Kind: crate.KindBox,
			ID:   2,
			Box: &crate.Box{
				Kind:   crate.BoxClosure,
				Code:   &crate.CodeDescriptor{Header: "fn(x)", Body: "return x + n", Flags: crate.FlagShort},
				CodeID: 1,
				Vars: []crate.Field{
					{Name: "n", Value: &crate.Node{Kind: crate.KindInt, Type: "int8", Int: -5}},
				},
				Scope: "example.com/app.Counter",
			},
		}},
		Elem: &crate.Node{
			Kind: crate.KindMap,
			ID:   1,
			Entries: []crate.Entry{
				{Key: &crate.Node{Kind: crate.KindString, Str: "f"}, Value: &crate.Node{Kind: crate.KindRef, Ref: 2}},
				{Key: &crate.Node{Kind: crate.KindString, Str: "ok"}, Value: &crate.Node{Kind: crate.KindBool, Bool: true}},
				{Key: &crate.Node{Kind: crate.KindString, Str: "pi"}, Value: &crate.Node{Kind: crate.KindFloat, Float: 3.25}},
				{Key: &crate.Node{Kind: crate.KindString, Str: "self"}, Value: &crate.Node{Kind: crate.KindRef, Ref: 1}},
				{Key: &crate.Node{Kind: crate.KindString, Str: "size"}, Value: &crate.Node{Kind: crate.KindUint, Uint: 1 << 40}},
			},
		},
	}
}

func TestNodeRoundTrip(t *testing.T) {
	c := New()
	original := sampleTree()

	data, err := c.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var restored crate.Node
	if err := c.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if !reflect.DeepEqual(&restored, original) {
		t.Errorf("round-trip failed:\n got %+v\nwant %+v", &restored, original)
	}
}

func TestObjectBoxRoundTrip(t *testing.T) {
	c := New()
	original := &crate.Node{
		Kind: crate.KindBox,
		ID:   1,
		Box: &crate.Box{
			Kind: crate.BoxObject,
			Type: "example.com/app.User",
			Fields: []crate.Field{
				{Name: "Name", Value: &crate.Node{Kind: crate.KindString, Str: "alice"}},
			},
			Private: []crate.Bucket{{
				Type: "example.com/app.Base",
				Fields: []crate.Field{
					{Name: "id", Value: &crate.Node{Kind: crate.KindInt, Int: 7}},
				},
			}},
		},
	}

	data, err := c.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var restored crate.Node
	if err := c.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if !reflect.DeepEqual(&restored, original) {
		t.Errorf("round-trip failed:\n got %+v\nwant %+v", &restored, original)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	c := New()
	original := &crate.Node{Kind: crate.KindBytes, Bytes: []byte{0x00, 0xff, 0x10, 0x80}}

	data, err := c.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var restored crate.Node
	if err := c.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if string(restored.Bytes) != string(original.Bytes) {
		t.Errorf("Bytes = %x, want %x", restored.Bytes, original.Bytes)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	c := New()

	var n crate.Node
	err := c.Unmarshal([]byte{0x82, 0x01}, &n)
	if err == nil {
		t.Error("Unmarshal(invalid) should return error")
	}
}
