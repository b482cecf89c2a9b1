// Package xml provides an XML codec implementation.
//
// Byte strings are written as element text, so payloads holding binary
// data that is not valid UTF-8 should use another codec.
package xml

import (
	"encoding/xml"

	"github.com/zoobzio/crate"
)

// xmlCodec implements crate.Codec for XML.
type xmlCodec struct{}

// New returns an XML codec.
func New() crate.Codec {
	return &xmlCodec{}
}

// ContentType returns the MIME type for XML.
func (c *xmlCodec) ContentType() string {
	return "application/xml"
}

// Marshal encodes v as XML.
func (c *xmlCodec) Marshal(v any) ([]byte, error) {
	return xml.Marshal(v)
}

// Unmarshal decodes XML data into v.
func (c *xmlCodec) Unmarshal(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}
