// Package cbor provides a CBOR codec implementation.
//
// Output uses Core Deterministic Encoding, so the same tree always
// produces the same bytes and therefore the same signature.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/zoobzio/crate"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

// cborCodec implements crate.Codec for CBOR.
type cborCodec struct{}

// New returns a CBOR codec.
func New() crate.Codec {
	return &cborCodec{}
}

// ContentType returns the MIME type for CBOR.
func (c *cborCodec) ContentType() string {
	return "application/cbor"
}

// Marshal encodes v as CBOR.
func (c *cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func (c *cborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
