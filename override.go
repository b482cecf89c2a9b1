package crate

// Hook interfaces let a type take over its own field map instead of the
// reflection-based object codec. *T must implement both for the hooks
// to be used.
//
// The map returned by BoxFields is boxed like any other value, so it may
// hold pointers, closures and cycles. UnboxFields receives the unboxed
// map; values that are still being built elsewhere in the graph (a
// closure that refers back to this object, for example) appear as nil.

// Boxer provides the fields written for a value.
type Boxer interface {
	BoxFields() (map[string]any, error)
}

// Unboxer restores a value from the fields written by BoxFields.
// It is called on a freshly allocated zero value.
type Unboxer interface {
	UnboxFields(fields map[string]any) error
}

// Mark is handed to an adapter's Unbox function. Calling it with the new
// instance publishes that instance to any reference that points back to
// it, then unboxes and returns the stored fields. Adapters that cannot
// allocate before seeing their fields may pass nil.
//
// Mark runs once; later calls return the same fields. An adapter that
// never calls it still has its fields unboxed after Unbox returns.
type Mark func(instance any) (map[string]any, error)

// Adapter is a registered custom codec for a type the reflection codec
// cannot handle, typically one whose state lives in unexported fields of
// another package. Box receives a *T; Unbox must return a *T.
//
// A type whose values hold pointers into themselves cannot be copied.
// Its adapter sets ByPointer, and a value of it held by value, such as a
// struct field, is refused.
type Adapter struct {
	Box       func(v any) (map[string]any, error)
	Unbox     func(mark Mark) (any, error)
	ByPointer bool
}

// Inline opts a struct out of boxing when embedded:
//
//	type Point struct {
//	    crate.Inline
//	    X, Y int
//	}
//
// Inline structs are written as plain field maps of their exported
// fields, with no identity. A process that cannot resolve the type name
// decodes them as map[string]any.
type Inline struct{}
