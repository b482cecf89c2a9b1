// Package catalog is a reference Extractor and Loader for crate.
//
// A Catalog maps function values to code it knows. Routines are defined
// up front with their code descriptor and Go implementation; closures
// built from them box to their descriptor and load back to the same
// implementation in any process holding an equal catalog.
//
//	cat := catalog.New()
//	cat.Define("counter", "fn()", "n += 1; return n", crate.FlagShort, increment)
//
//	s := crate.New(json.New(), crate.WithExtractor(cat), crate.WithLoader(cat))
//
//	f, _ := cat.Closure("counter", map[string]any{"n": 0})
//	data, _ := s.Serialize(ctx, f)
//
// Descriptors the catalog has never seen are handed to the Compiler, if
// one is configured. Compiled implementations are cached by the content
// fingerprint of their descriptor.
package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/zoobzio/crate"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnknownRoutine indicates a name the catalog has no routine for.
	ErrUnknownRoutine = errors.New("unknown routine")

	// ErrUnknownCode indicates a descriptor that is neither defined nor compilable.
	ErrUnknownCode = errors.New("unknown code")

	// ErrNotFunc indicates a value passed to Register that is not a func.
	ErrNotFunc = errors.New("not a function")
)

// Compiler turns a descriptor the catalog does not know into an
// implementation.
type Compiler func(code crate.CodeDescriptor) (crate.Impl, error)

type routine struct {
	code crate.CodeDescriptor
	impl crate.Impl
}

// Catalog holds named routines, callables and raw Go funcs. It is safe
// for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	routines  map[string]routine
	compiled  map[string]crate.Impl
	callables map[string]crate.Impl
	funcs     map[uintptr]string
	raw       map[string]any

	compiler Compiler
	hash     crate.HashAlgo
	group    singleflight.Group
	logger   *zap.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCompiler sets the fallback for descriptors that were not defined.
func WithCompiler(c Compiler) Option {
	return func(cat *Catalog) { cat.compiler = c }
}

// WithHash selects the fingerprint algorithm for the compile cache.
// The default is BLAKE3.
func WithHash(algo crate.HashAlgo) Option {
	return func(cat *Catalog) { cat.hash = algo }
}

// WithLogger sets the logger for compile events.
func WithLogger(l *zap.Logger) Option {
	return func(cat *Catalog) {
		if l != nil {
			cat.logger = l
		}
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	cat := &Catalog{
		routines:  make(map[string]routine),
		compiled:  make(map[string]crate.Impl),
		callables: make(map[string]crate.Impl),
		funcs:     make(map[uintptr]string),
		raw:       make(map[string]any),
		hash:      crate.HashBlake3,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cat)
	}
	return cat
}

// Define adds a routine under name. Closures of the routine box to the
// given descriptor, and loading that descriptor yields impl.
func (c *Catalog) Define(name, header, body string, flags crate.CodeFlags, impl crate.Impl) error {
	code := crate.CodeDescriptor{Header: header, Body: body, Flags: flags}
	fp, err := c.fingerprint(code)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.routines[name] = routine{code: code, impl: impl}
	c.compiled[fp] = impl
	return nil
}

// Closure returns a closure of the named routine over vars. The map is
// kept by the returned Func.
func (c *Catalog) Closure(name string, vars map[string]any) (*crate.Func, error) {
	c.mu.RLock()
	r, ok := c.routines[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutine, name)
	}
	return crate.NewFunc(r.code, vars, r.impl), nil
}

// Handle adds a named callable. Refs to it box by name only.
func (c *Catalog) Handle(name string, impl crate.Impl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callables[name] = impl
}

// Ref returns a reference to the named callable.
func (c *Catalog) Ref(name string) (*crate.Func, error) {
	c.mu.RLock()
	impl, ok := c.callables[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutine, name)
	}
	return crate.NewRef(name, impl), nil
}

// Register names a plain Go func so values holding it can be boxed.
// Funcs are matched by their code pointer, so every closure created from
// the same function literal shares the name.
func (c *Catalog) Register(name string, fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: %T", ErrNotFunc, fn)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[v.Pointer()] = name
	c.raw[name] = fn
	return nil
}

// Names lists defined routines and callables in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := append(lo.Keys(c.routines), lo.Keys(c.callables)...)
	c.mu.RUnlock()
	names = lo.Uniq(names)
	sort.Strings(names)
	return names
}

// Reference implements crate.Extractor.
func (c *Catalog) Reference(fn any) (string, bool) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.funcs[v.Pointer()]
	return name, ok
}

// Extract implements crate.Extractor.
func (c *Catalog) Extract(f *crate.Func) (crate.CodeDescriptor, error) {
	code, ok := f.Code()
	if !ok {
		return crate.CodeDescriptor{}, fmt.Errorf("%w: function has no code descriptor", ErrUnknownCode)
	}
	return code, nil
}

// Load implements crate.Loader. The vars map is kept by the returned
// Func.
func (c *Catalog) Load(code crate.CodeDescriptor, vars map[string]any) (*crate.Func, error) {
	impl, err := c.compile(code)
	if err != nil {
		return nil, err
	}
	return crate.NewFunc(code, vars, impl), nil
}

// Bind implements crate.Loader.
func (c *Catalog) Bind(fn *crate.Func, receiver any, scope string) (*crate.Func, error) {
	return fn.Bind(receiver, scope), nil
}

// Resolve implements crate.Loader. Named callables come back as a *Func
// bound to receiver; registered Go funcs come back as themselves.
func (c *Catalog) Resolve(ref string, receiver any) (any, error) {
	c.mu.RLock()
	impl, isCallable := c.callables[ref]
	fn, isRaw := c.raw[ref]
	c.mu.RUnlock()

	switch {
	case isCallable:
		f := crate.NewRef(ref, impl)
		if receiver != nil {
			f = f.Bind(receiver, "")
		}
		return f, nil
	case isRaw:
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRoutine, ref)
}

// compile returns the implementation for code, compiling it at most once
// per fingerprint even under concurrent loads.
func (c *Catalog) compile(code crate.CodeDescriptor) (crate.Impl, error) {
	fp, err := c.fingerprint(code)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	impl, ok := c.compiled[fp]
	c.mu.RUnlock()
	if ok {
		return impl, nil
	}

	v, err, _ := c.group.Do(fp, func() (any, error) {
		c.mu.RLock()
		impl, ok := c.compiled[fp]
		c.mu.RUnlock()
		if ok {
			return impl, nil
		}
		if c.compiler == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCode, code.Header)
		}

		c.logger.Debug("compiling code", zap.String("fingerprint", fp), zap.String("header", code.Header))
		impl, err := c.compiler(code)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", code.Header, err)
		}
		c.mu.Lock()
		c.compiled[fp] = impl
		c.mu.Unlock()
		return impl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(crate.Impl), nil
}

func (c *Catalog) fingerprint(code crate.CodeDescriptor) (string, error) {
	data := fmt.Appendf(nil, "%s\x00%s\x00%d", code.Header, code.Body, code.Flags)
	return crate.Fingerprint(c.hash, data)
}
