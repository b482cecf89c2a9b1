// Package testing provides test utilities for crate.
package testing

import (
	"testing"
	"time"

	"github.com/zoobzio/crate"
	"github.com/zoobzio/crate/catalog"
)

// TestKey returns a 32-byte key usable for every signer and for AES-256.
func TestKey(tb testing.TB) []byte {
	tb.Helper()
	return []byte("32-byte-key-for-aes-256-encrypt!")
}

// TestSigner returns an HMAC signer and verifier over TestKey.
func TestSigner(tb testing.TB) crate.SignVerifier {
	tb.Helper()
	return crate.HMAC(TestKey(tb))
}

// TestEncryptor returns an AES encryptor configured for testing.
func TestEncryptor(tb testing.TB) crate.Encryptor {
	tb.Helper()
	enc, err := crate.AES(TestKey(tb))
	if err != nil {
		tb.Fatalf("AES() error: %v", err)
	}
	return enc
}

// TestCatalog returns a catalog with the routines used across tests:
//
//   - "add" returns n + x
//   - "counter" increments n and returns the new value
//   - "greet" greets its receiver
//   - "self" returns the Func stored under "self" in its own variables
//   - callable "double" returns twice its argument
func TestCatalog(tb testing.TB) *catalog.Catalog {
	tb.Helper()
	cat := catalog.New()
	define := func(name, header, body string, flags crate.CodeFlags, impl crate.Impl) {
		if err := cat.Define(name, header, body, flags, impl); err != nil {
			tb.Fatalf("Define(%q) error: %v", name, err)
		}
	}

	define("add", "fn(x)", "return n + x", crate.FlagShort, func(env crate.Env, args ...any) (any, error) {
		return env.Vars["n"].(int) + args[0].(int), nil
	})
	define("counter", "fn()", "n += 1; return n", 0, func(env crate.Env, _ ...any) (any, error) {
		n := env.Vars["n"].(int) + 1
		env.Vars["n"] = n
		return n, nil
	})
	define("greet", "fn()", "return 'hello ' + this.Name", crate.FlagShort|crate.FlagCapturesReceiver, func(env crate.Env, _ ...any) (any, error) {
		u, ok := env.Receiver.(*User)
		if !ok {
			return "hello stranger", nil
		}
		return "hello " + u.Name, nil
	})
	define("self", "fn()", "return self", crate.FlagShort, func(env crate.Env, _ ...any) (any, error) {
		return env.Vars["self"], nil
	})
	cat.Handle("double", func(_ crate.Env, args ...any) (any, error) {
		return args[0].(int) * 2, nil
	})
	return cat
}

// NewSerializer returns a serializer over codec that signs with TestKey
// and uses TestCatalog for function values.
func NewSerializer(tb testing.TB, codec crate.Codec, opts ...crate.Option) *crate.Serializer {
	tb.Helper()
	cat := TestCatalog(tb)
	base := []crate.Option{
		crate.WithKey(TestKey(tb)),
		crate.WithExtractor(cat),
		crate.WithLoader(cat),
	}
	return crate.New(codec, append(base, opts...)...)
}

// Base is embedded by User to exercise private field buckets.
type Base struct {
	id      int
	Created time.Time
}

// ID returns the unexported id.
func (b *Base) ID() int { return b.id }

// User is a boxable object type with an embedded base, a shared slice of
// friends and a self reference.
type User struct {
	Base
	id      string
	Name    string
	Friends []*User
	Tags    map[string]string
	Best    *User
	Greeter *crate.Func
}

// NewUser returns a user with both private ids set.
func NewUser(name string, baseID int, id string) *User {
	return &User{Base: Base{id: baseID}, id: id, Name: name, Tags: map[string]string{}}
}

// UserID returns the unexported id declared on User.
func (u *User) UserID() string { return u.id }

// Point is written inline.
type Point struct {
	crate.Inline
	X, Y int
}
