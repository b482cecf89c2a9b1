package compress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zoobzio/crate"
)

func payload() []byte {
	return bytes.Repeat([]byte(`{"k":"map","m":[{"k":{"k":"str","s":"name"},"v":{"k":"str","s":"alice"}}]}`), 64)
}

func TestRoundTrip(t *testing.T) {
	for _, algo := range []crate.CompressAlgo{crate.CompressZstd, crate.CompressLZ4, crate.CompressSnappy} {
		t.Run(string(algo), func(t *testing.T) {
			c, err := New(algo)
			if err != nil {
				t.Fatalf("New(%q) error: %v", algo, err)
			}
			if c.Name() != algo {
				t.Errorf("Name() = %q, want %q", c.Name(), algo)
			}

			original := payload()
			packed, err := c.Compress(original)
			if err != nil {
				t.Fatalf("Compress() error: %v", err)
			}
			if len(packed) >= len(original) {
				t.Errorf("compressed size %d not below input size %d", len(packed), len(original))
			}

			restored, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress() error: %v", err)
			}
			if !bytes.Equal(restored, original) {
				t.Error("round-trip produced different bytes")
			}
		})
	}
}

func TestRoundTrip_Empty(t *testing.T) {
	for _, c := range []crate.Compressor{Zstd(), LZ4(), Snappy()} {
		packed, err := c.Compress(nil)
		if err != nil {
			t.Fatalf("%s: Compress(nil) error: %v", c.Name(), err)
		}
		restored, err := c.Decompress(packed)
		if err != nil {
			t.Fatalf("%s: Decompress() error: %v", c.Name(), err)
		}
		if len(restored) != 0 {
			t.Errorf("%s: restored %d bytes, want 0", c.Name(), len(restored))
		}
	}
}

func TestDecompress_Garbage(t *testing.T) {
	garbage := []byte("definitely not a compressed payload")
	for _, c := range []crate.Compressor{Zstd(), LZ4(), Snappy()} {
		if _, err := c.Decompress(garbage); err == nil {
			t.Errorf("%s: Decompress(garbage) should return error", c.Name())
		}
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("brotli")
	if !errors.Is(err, crate.ErrUnknownAlgorithm) {
		t.Errorf("New(brotli) error = %v, want ErrUnknownAlgorithm", err)
	}
}
