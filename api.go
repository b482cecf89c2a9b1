// Package crate serializes arbitrary Go value graphs, function values
// included, into a signed, codec-neutral tree.
//
// Values are first boxed into a tree of Nodes. Boxing preserves object
// identity: two references to the same pointer, map, slice or Func come
// back as two references to one rebuilt value, and cycles are allowed.
// The tree is then written with any Codec, optionally compressed and
// encrypted, and sealed with a signature line.
//
// # Basic Usage
//
//	s := crate.New(json.New(), crate.WithKey(secret))
//
//	data, err := s.Serialize(ctx, graph)
//	...
//	out, err := s.Unserialize(ctx, data)
//
// # Objects
//
// Structs reached through a pointer are boxed as objects. Their fields
// are written by the object codec: exported fields by name, unexported
// fields grouped by the struct that declares them, so embedded structs
// with clashing field names survive the trip. Types can take over their
// own fields with Boxer and Unboxer, or through a registered Adapter.
// Embedding Inline, or calling Exclude, writes a struct as a plain map of
// its exported fields instead.
//
// A process that unboxes a type it never boxed must Register it first.
//
// # Function values
//
// A *Func is either a closure over captured variables or a reference to
// a named routine. Boxing a closure asks the Extractor for its code
// descriptor; unboxing hands the descriptor and the rebuilt variables to
// the Loader. The catalog package provides both.
//
// Plain Go funcs can be boxed only when the Extractor knows them by name.
//
// # Integrity
//
// A serializer with a Signer prefixes its output with "@<signature>\n".
// Unserialize fails closed: signed input without a Verifier and unsigned
// input with a Verifier are both rejected, as is a bad signature.
//
// # Codec Providers
//
// The following codec implementations are available as subpackages:
//
//   - json - JSON encoding (application/json)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - cbor - CBOR encoding (application/cbor)
//   - yaml - YAML encoding (application/yaml)
//   - bson - BSON encoding (application/bson)
//   - xml - XML encoding (application/xml)
//
// Compressors for zstd, lz4 and snappy live in the compress package.
package crate

// Extractor describes function values for boxing.
type Extractor interface {
	// Reference returns the registered name of a plain Go func.
	Reference(fn any) (string, bool)

	// Extract returns the code descriptor of a closure.
	Extract(f *Func) (CodeDescriptor, error)
}

// Loader turns boxed function values back into callables.
type Loader interface {
	// Load builds a closure from its code and captured variables. The
	// vars map must be kept by reference: entries that point back at the
	// closure itself are filled in after Load returns.
	Load(code CodeDescriptor, vars map[string]any) (*Func, error)

	// Bind attaches a receiver and scope to a loaded closure. The receiver
	// is always complete when Bind is called. A receiver that is itself a
	// function still being rebuilt, such as the closure whose captured
	// variables hold the bound function, is rejected with a
	// MalformedBoxError before Bind is reached.
	Bind(fn *Func, receiver any, scope string) (*Func, error)

	// Resolve looks up a named routine, bound to receiver when non-nil.
	Resolve(ref string, receiver any) (any, error)
}

// Compressor is an optional payload stage applied after the codec.
type Compressor interface {
	Name() CompressAlgo
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// funcExtractor is the default Extractor: closures carry their own code
// descriptor and no plain funcs are known.
type funcExtractor struct{}

func (funcExtractor) Reference(any) (string, bool) { return "", false }

func (funcExtractor) Extract(f *Func) (CodeDescriptor, error) {
	if code, ok := f.Code(); ok {
		return code, nil
	}
	return CodeDescriptor{}, &UnsupportedValueError{Type: TypeName(funcPtrType), Reason: "closure has no code descriptor"}
}
