package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/crate"
	"github.com/zoobzio/crate/bson"
	"github.com/zoobzio/crate/cbor"
	"github.com/zoobzio/crate/compress"
	"github.com/zoobzio/crate/json"
	"github.com/zoobzio/crate/msgpack"
	cratetest "github.com/zoobzio/crate/testing"
	"github.com/zoobzio/crate/xml"
	"github.com/zoobzio/crate/yaml"
)

type namedCodec struct {
	name  string
	codec crate.Codec
}

// binarySafe lists the codecs that carry arbitrary bytes. XML writes bytes
// as element text, so graphs holding binary marshaled values skip it.
func binarySafe() []namedCodec {
	return []namedCodec{
		{"json", json.New()},
		{"msgpack", msgpack.New()},
		{"yaml", yaml.New()},
		{"bson", bson.New()},
		{"cbor", cbor.New()},
	}
}

func allCodecs() []namedCodec {
	return append(binarySafe(), namedCodec{"xml", xml.New()})
}

func newGraph() *cratetest.User {
	ann := cratetest.NewUser("ann", 1, "a")
	bob := cratetest.NewUser("bob", 2, "b")
	ann.Created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ann.Tags["role"] = "admin"
	ann.Friends = []*cratetest.User{bob, bob}
	bob.Best = ann
	return ann
}

func checkGraph(t *testing.T, got *cratetest.User) {
	t.Helper()
	if got.Name != "ann" || got.ID() != 1 || got.UserID() != "a" {
		t.Errorf("user = %q %d %q", got.Name, got.ID(), got.UserID())
	}
	if !got.Created.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Created = %v", got.Created)
	}
	if got.Tags["role"] != "admin" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if len(got.Friends) != 2 || got.Friends[0] != got.Friends[1] {
		t.Fatal("shared friend split into two")
	}
	if got.Friends[0].Best != got {
		t.Error("cycle back to ann was not restored")
	}
}

func TestRoundTrip_Graph(t *testing.T) {
	for _, nc := range binarySafe() {
		t.Run(nc.name, func(t *testing.T) {
			ctx := context.Background()
			s := cratetest.NewSerializer(t, nc.codec)

			data, err := s.Serialize(ctx, newGraph())
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			var got *cratetest.User
			if err := s.UnserializeInto(ctx, data, &got); err != nil {
				t.Fatalf("UnserializeInto() error: %v", err)
			}
			checkGraph(t, got)
		})
	}
}

func TestRoundTrip_Functions(t *testing.T) {
	for _, nc := range allCodecs() {
		t.Run(nc.name, func(t *testing.T) {
			ctx := context.Background()
			cat := cratetest.TestCatalog(t)
			s := cratetest.NewSerializer(t, nc.codec)

			counter, _ := cat.Closure("counter", map[string]any{"n": 0})
			counter.Call()
			counter.Call()

			selfVars := map[string]any{"n": 5}
			self, _ := cat.Closure("self", selfVars)
			selfVars["self"] = self

			add, _ := cat.Closure("add", map[string]any{"n": 40})
			double, _ := cat.Ref("double")

			data, err := s.Serialize(ctx, map[string]any{
				"add":     add,
				"counter": counter,
				"double":  double,
				"point":   cratetest.Point{X: 1, Y: 2},
				"self":    self,
			})
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			out, err := s.Unserialize(ctx, data)
			if err != nil {
				t.Fatalf("Unserialize() error: %v", err)
			}
			m := out.(map[string]any)

			if got, _ := m["counter"].(*crate.Func).Call(); got != 3 {
				t.Errorf("counter() = %v, want 3", got)
			}
			if got, _ := m["add"].(*crate.Func).Call(2); got != 42 {
				t.Errorf("add(2) = %v, want 42", got)
			}
			if got, _ := m["double"].(*crate.Func).Call(4); got != 8 {
				t.Errorf("double(4) = %v, want 8", got)
			}
			rs := m["self"].(*crate.Func)
			if got, _ := rs.Call(); got != rs {
				t.Error("self closure does not return itself")
			}
			if m["point"] != (cratetest.Point{X: 1, Y: 2}) {
				t.Errorf("point = %#v", m["point"])
			}
		})
	}
}

func TestRoundTrip_ReceiverCycle(t *testing.T) {
	for _, nc := range binarySafe() {
		t.Run(nc.name, func(t *testing.T) {
			ctx := context.Background()
			cat := cratetest.TestCatalog(t)
			s := cratetest.NewSerializer(t, nc.codec)

			u := cratetest.NewUser("ann", 1, "a")
			greet, _ := cat.Closure("greet", nil)
			u.Greeter = greet.Bind(u, "")
			users := []*cratetest.User{u, u}

			data, err := s.Serialize(ctx, users)
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			var got []*cratetest.User
			if err := s.UnserializeInto(ctx, data, &got); err != nil {
				t.Fatalf("UnserializeInto() error: %v", err)
			}
			if got[0] != got[1] {
				t.Error("u[0] and u[1] are different objects")
			}
			if msg, _ := got[0].Greeter.Call(); msg != "hello ann" {
				t.Errorf("Greeter() = %v", msg)
			}
		})
	}
}

func TestRoundTrip_Pipelines(t *testing.T) {
	key := cratetest.TestKey(t)
	envelope, err := crate.Envelope(key)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts []crate.Option
	}{
		{"zstd", []crate.Option{crate.WithCompressor(compress.Zstd())}},
		{"lz4", []crate.Option{crate.WithCompressor(compress.LZ4())}},
		{"snappy", []crate.Option{crate.WithCompressor(compress.Snappy())}},
		{"aes", []crate.Option{crate.WithEncryptor(cratetest.TestEncryptor(t))}},
		{"envelope", []crate.Option{crate.WithEncryptor(envelope)}},
		{"zstd+aes", []crate.Option{
			crate.WithCompressor(compress.Zstd()),
			crate.WithEncryptor(cratetest.TestEncryptor(t)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := cratetest.NewSerializer(t, msgpack.New(), tt.opts...)

			data, err := s.Serialize(ctx, newGraph())
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			var got *cratetest.User
			if err := s.UnserializeInto(ctx, data, &got); err != nil {
				t.Fatalf("UnserializeInto() error: %v", err)
			}
			checkGraph(t, got)
		})
	}
}

func TestRoundTrip_Signers(t *testing.T) {
	key := cratetest.TestKey(t)
	for _, algo := range []crate.SignAlgo{crate.SignHMAC, crate.SignBlake2b, crate.SignBlake3, crate.SignEd25519} {
		t.Run(string(algo), func(t *testing.T) {
			ctx := context.Background()
			sv, err := crate.NewSigner(algo, key)
			if err != nil {
				t.Fatalf("NewSigner() error: %v", err)
			}
			s := crate.New(cbor.New(), crate.WithSigner(sv), crate.WithVerifier(sv))

			data, err := s.Serialize(ctx, []any{"a", 1, true})
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			if !crate.IsSealed(data) {
				t.Fatal("output is not sealed")
			}
			if _, err := s.Unserialize(ctx, data); err != nil {
				t.Errorf("Unserialize() error: %v", err)
			}

			data[len(data)-1] ^= 0xff
			if _, err := s.Unserialize(ctx, data); err == nil {
				t.Error("Unserialize() accepted a tampered payload")
			}
		})
	}
}

func TestRoundTrip_TreeAcrossCodecs(t *testing.T) {
	ctx := context.Background()
	from := cratetest.NewSerializer(t, json.New())
	to := cratetest.NewSerializer(t, cbor.New())

	data, err := from.Serialize(ctx, newGraph())
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	tree, err := from.Tree(ctx, data)
	if err != nil {
		t.Fatalf("Tree() error: %v", err)
	}

	// A tree boxes to itself, so it can be re-encoded without rebuilding.
	data, err = to.Serialize(ctx, tree)
	if err != nil {
		t.Fatalf("Serialize(tree) error: %v", err)
	}
	var got *cratetest.User
	if err := to.UnserializeInto(ctx, data, &got); err != nil {
		t.Fatalf("UnserializeInto() error: %v", err)
	}
	checkGraph(t, got)
}
