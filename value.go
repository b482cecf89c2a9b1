package crate

import "strconv"

// CodeFlags describes what a function body refers to. The flags are
// computed by the Extractor; the engine only reads them.
type CodeFlags uint8

const (
	// FlagShort marks a single-expression body.
	FlagShort CodeFlags = 1 << iota

	// FlagStatic marks a body that can never use a receiver.
	FlagStatic

	// FlagCapturesReceiver marks a body that uses its receiver.
	FlagCapturesReceiver

	// FlagCapturesScope marks a body that uses its scope.
	FlagCapturesScope
)

// Has reports whether all bits of flag are set.
func (f CodeFlags) Has(flag CodeFlags) bool {
	return f&flag == flag
}

// CodeDescriptor is the opaque description of a function body. It is
// produced by an Extractor and turned back into a callable by a Loader.
// The engine never interprets Header or Body.
type CodeDescriptor struct {
	Header string    `json:"h" msgpack:"h" yaml:"h" bson:"h" xml:"h"`
	Body   string    `json:"b" msgpack:"b" yaml:"b" bson:"b" xml:"b"`
	Flags  CodeFlags `json:"f,omitempty" msgpack:"f,omitempty" yaml:"f,omitempty" bson:"f,omitempty" xml:"f,attr,omitempty"`
}

// key identifies descriptors with identical content.
func (c CodeDescriptor) key() string {
	return c.Header + "\x00" + c.Body + "\x00" + strconv.Itoa(int(c.Flags))
}

// Env is what a function body sees when it runs.
type Env struct {
	Vars     map[string]any
	Receiver any
	Scope    string
	Self     *Func
}

// Impl is the Go implementation behind a Func.
type Impl func(env Env, args ...any) (any, error)

// Func is a function value that can cross a process boundary.
//
// A Func is either a closure (a code descriptor plus captured variables)
// or a plain reference to a named routine. Both may be bound to a
// receiver and a scope. Funcs are created by a Loader, or directly with
// NewFunc and NewRef.
type Func struct {
	code     *CodeDescriptor
	ref      string
	receiver any
	scope    string
	vars     map[string]any
	impl     Impl
}

// NewFunc returns a closure over vars. The map is kept, not copied, so a
// closure can capture itself by storing the returned Func in vars.
func NewFunc(code CodeDescriptor, vars map[string]any, impl Impl) *Func {
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Func{code: &code, vars: vars, impl: impl}
}

// NewRef returns a plain reference to the routine called name.
func NewRef(name string, impl Impl) *Func {
	return &Func{ref: name, impl: impl}
}

// Bind returns a copy of f bound to receiver and scope. The copy shares
// f's captured variables.
func (f *Func) Bind(receiver any, scope string) *Func {
	bound := *f
	bound.receiver = receiver
	bound.scope = scope
	return &bound
}

// Call runs the function.
func (f *Func) Call(args ...any) (any, error) {
	if f == nil || f.impl == nil {
		return nil, ErrNotCallable
	}
	return f.impl(Env{
		Vars:     f.vars,
		Receiver: f.receiver,
		Scope:    f.scope,
		Self:     f,
	}, args...)
}

// Code returns the code descriptor of a closure.
func (f *Func) Code() (CodeDescriptor, bool) {
	if f.code == nil {
		return CodeDescriptor{}, false
	}
	return *f.code, true
}

// Ref returns the routine name of a plain reference, or "".
func (f *Func) Ref() string { return f.ref }

// IsRef reports whether f is a plain reference rather than a closure.
func (f *Func) IsRef() bool { return f.ref != "" }

// Receiver returns the bound receiver, if any.
func (f *Func) Receiver() any { return f.receiver }

// Scope returns the bound scope name, if any.
func (f *Func) Scope() string { return f.scope }

// Vars returns the captured variables. The map is shared with f.
func (f *Func) Vars() map[string]any { return f.vars }
