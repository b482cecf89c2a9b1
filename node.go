package crate

// Kind identifies the shape of a Node.
type Kind string

const (
	KindNil     Kind = "nil"
	KindBool    Kind = "bool"
	KindInt     Kind = "int"
	KindUint    Kind = "uint"
	KindFloat   Kind = "float"
	KindComplex Kind = "complex"
	KindString  Kind = "str"
	KindBytes   Kind = "bytes"

	// KindList holds slice and array elements in Items.
	KindList Kind = "list"

	// KindMap holds map entries in Entries, sorted by key.
	KindMap Kind = "map"

	// KindPtr is a pointer to a non-boxed value; the target is in Elem.
	KindPtr Kind = "ptr"

	// KindInline is a struct that opted out of boxing. Only exported
	// fields are kept, in Fields.
	KindInline Kind = "inline"

	// KindBox marks a surrogate for an object or function value.
	KindBox Kind = "box"

	// KindRef points at a node with identity that was written earlier.
	KindRef Kind = "ref"

	// KindOrdered is the top-level ordering wrapper: Items are resolved
	// before Elem.
	KindOrdered Kind = "ordered"
)

// BoxKind identifies what a Box stands in for.
type BoxKind string

const (
	// BoxObject is a structured object: type name plus field map.
	BoxObject BoxKind = "object"

	// BoxClosure is a function value with captured state.
	BoxClosure BoxKind = "closure"

	// BoxCallable is a plain reference to a named routine.
	BoxCallable BoxKind = "callable"
)

// Node is one element of a boxed value tree. Exactly the fields that
// belong to Kind are set; everything else is left at its zero value so
// codecs can omit it.
//
// Nodes with a non-zero ID have identity. In the encoded form such a
// node is written once and referenced afterwards through KindRef.
type Node struct {
	Kind Kind   `json:"k" msgpack:"k" yaml:"k" bson:"k" xml:"k,attr"`
	ID   uint64 `json:"id,omitempty" msgpack:"id,omitempty" yaml:"id,omitempty" bson:"id,omitempty" xml:"id,attr,omitempty"`
	Type string `json:"t,omitempty" msgpack:"t,omitempty" yaml:"t,omitempty" bson:"t,omitempty" xml:"t,attr,omitempty"`

	Bool  bool    `json:"b,omitempty" msgpack:"b,omitempty" yaml:"b,omitempty" bson:"b,omitempty" xml:"b,attr,omitempty"`
	Int   int64   `json:"i,omitempty" msgpack:"i,omitempty" yaml:"i,omitempty" bson:"i,omitempty" xml:"i,attr,omitempty"`
	Uint  uint64  `json:"u,omitempty" msgpack:"u,omitempty" yaml:"u,omitempty" bson:"u,omitempty" xml:"u,attr,omitempty"`
	Float float64 `json:"f,omitempty" msgpack:"f,omitempty" yaml:"f,omitempty" bson:"f,omitempty" xml:"f,attr,omitempty"`
	Imag  float64 `json:"im,omitempty" msgpack:"im,omitempty" yaml:"im,omitempty" bson:"im,omitempty" xml:"im,attr,omitempty"`
	Str   string  `json:"s,omitempty" msgpack:"s,omitempty" yaml:"s,omitempty" bson:"s,omitempty" xml:"s,omitempty"`
	Bytes []byte  `json:"x,omitempty" msgpack:"x,omitempty" yaml:"x,omitempty" bson:"x,omitempty" xml:"x,omitempty"`

	Items   []*Node `json:"l,omitempty" msgpack:"l,omitempty" yaml:"l,omitempty" bson:"l,omitempty" xml:"l,omitempty"`
	Entries []Entry `json:"m,omitempty" msgpack:"m,omitempty" yaml:"m,omitempty" bson:"m,omitempty" xml:"m,omitempty"`
	Fields  []Field `json:"fl,omitempty" msgpack:"fl,omitempty" yaml:"fl,omitempty" bson:"fl,omitempty" xml:"fl,omitempty"`
	Elem    *Node   `json:"e,omitempty" msgpack:"e,omitempty" yaml:"e,omitempty" bson:"e,omitempty" xml:"e,omitempty"`
	Box     *Box    `json:"bx,omitempty" msgpack:"bx,omitempty" yaml:"bx,omitempty" bson:"bx,omitempty" xml:"bx,omitempty"`
	Ref     uint64  `json:"r,omitempty" msgpack:"r,omitempty" yaml:"r,omitempty" bson:"r,omitempty" xml:"r,attr,omitempty"`
}

// Entry is a single map entry.
type Entry struct {
	Key   *Node `json:"k" msgpack:"k" yaml:"k" bson:"k" xml:"k"`
	Value *Node `json:"v" msgpack:"v" yaml:"v" bson:"v" xml:"v"`
}

// Field is a named value inside an object, closure or inline struct.
type Field struct {
	Name  string `json:"n" msgpack:"n" yaml:"n" bson:"n" xml:"n,attr"`
	Value *Node  `json:"v" msgpack:"v" yaml:"v" bson:"v" xml:"v"`
}

// Bucket holds the fields a single declaring type contributes to an
// object when those fields are not visible from the outside.
type Bucket struct {
	Type   string  `json:"t" msgpack:"t" yaml:"t" bson:"t" xml:"t,attr"`
	Fields []Field `json:"fl,omitempty" msgpack:"fl,omitempty" yaml:"fl,omitempty" bson:"fl,omitempty" xml:"fl,omitempty"`
}

// Box is the serializable surrogate for an object, closure or callable.
// Which fields are set depends on Kind:
//
//   - BoxObject: Type, ByValue, Fields, Private
//   - BoxClosure: Code or CodeID, Vars, optionally Receiver and Scope
//   - BoxCallable: Ref, optionally Receiver
type Box struct {
	Kind    BoxKind `json:"k" msgpack:"k" yaml:"k" bson:"k" xml:"k,attr"`
	Type    string  `json:"t,omitempty" msgpack:"t,omitempty" yaml:"t,omitempty" bson:"t,omitempty" xml:"t,attr,omitempty"`
	ByValue bool    `json:"bv,omitempty" msgpack:"bv,omitempty" yaml:"bv,omitempty" bson:"bv,omitempty" xml:"bv,attr,omitempty"`

	Fields  []Field  `json:"fl,omitempty" msgpack:"fl,omitempty" yaml:"fl,omitempty" bson:"fl,omitempty" xml:"fl,omitempty"`
	Private []Bucket `json:"pv,omitempty" msgpack:"pv,omitempty" yaml:"pv,omitempty" bson:"pv,omitempty" xml:"pv,omitempty"`

	Code   *CodeDescriptor `json:"c,omitempty" msgpack:"c,omitempty" yaml:"c,omitempty" bson:"c,omitempty" xml:"c,omitempty"`
	CodeID uint64          `json:"ci,omitempty" msgpack:"ci,omitempty" yaml:"ci,omitempty" bson:"ci,omitempty" xml:"ci,attr,omitempty"`
	Vars   []Field         `json:"vs,omitempty" msgpack:"vs,omitempty" yaml:"vs,omitempty" bson:"vs,omitempty" xml:"vs,omitempty"`

	Receiver *Node  `json:"rc,omitempty" msgpack:"rc,omitempty" yaml:"rc,omitempty" bson:"rc,omitempty" xml:"rc,omitempty"`
	Scope    string `json:"sc,omitempty" msgpack:"sc,omitempty" yaml:"sc,omitempty" bson:"sc,omitempty" xml:"sc,attr,omitempty"`
	Ref      string `json:"r,omitempty" msgpack:"r,omitempty" yaml:"r,omitempty" bson:"r,omitempty" xml:"r,attr,omitempty"`
}
