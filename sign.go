package crate

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Signer produces the signature written in front of a sealed payload.
// Signatures must be plain ASCII without newlines.
type Signer interface {
	Sign(payload []byte) string
}

// Verifier checks a signature against a payload. Implementations must
// compare in constant time.
type Verifier interface {
	Verify(signature string, payload []byte) bool
}

// SignVerifier both signs and verifies.
type SignVerifier interface {
	Signer
	Verifier
}

// macSigner signs with a keyed hash and base64 encodes the digest.
type macSigner struct {
	newHash func() hash.Hash
}

func (m *macSigner) digest(payload []byte) []byte {
	h := m.newHash()
	h.Write(payload)
	return h.Sum(nil)
}

func (m *macSigner) Sign(payload []byte) string {
	return base64.StdEncoding.EncodeToString(m.digest(payload))
}

func (m *macSigner) Verify(signature string, payload []byte) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, m.digest(payload))
}

// HMAC returns an HMAC-SHA256 signer keyed with secret.
func HMAC(secret []byte) SignVerifier {
	key := append([]byte(nil), secret...)
	return &macSigner{newHash: func() hash.Hash { return hmac.New(sha256.New, key) }}
}

// Blake2b returns a keyed BLAKE2b-256 signer. Keys must be 1 to 64 bytes.
func Blake2b(key []byte) (SignVerifier, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("%w: blake2b key must be 1 to %d bytes, got %d", ErrInvalidKey, blake2b.Size, len(key))
	}
	key = append([]byte(nil), key...)
	return &macSigner{newHash: func() hash.Hash {
		h, _ := blake2b.New256(key) // #nosec G104 -- key length checked above
		return h
	}}, nil
}

// Blake3 returns a keyed BLAKE3 signer. Keys must be exactly 32 bytes.
func Blake3(key []byte) (SignVerifier, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: blake3 key must be 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	key = append([]byte(nil), key...)
	return &macSigner{newHash: func() hash.Hash {
		h, _ := blake3.NewKeyed(key) // #nosec G104 -- key length checked above
		return h
	}}, nil
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s *ed25519Signer) Sign(payload []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, payload))
}

type ed25519Verifier struct {
	pub ed25519.PublicKey
}

func (v *ed25519Verifier) Verify(signature string, payload []byte) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, payload, sig)
}

// Ed25519Signer signs with priv. The matching verifier only needs the
// public key, so producers and consumers can hold different secrets.
func Ed25519Signer(priv ed25519.PrivateKey) Signer {
	return &ed25519Signer{priv: priv}
}

// Ed25519Verifier verifies signatures made by the matching private key.
func Ed25519Verifier(pub ed25519.PublicKey) Verifier {
	return &ed25519Verifier{pub: pub}
}

type ed25519Pair struct {
	ed25519Signer
	ed25519Verifier
}

// NewSigner builds a signer for algo from raw key material. For
// SignEd25519 the key is a 32-byte seed.
func NewSigner(algo SignAlgo, key []byte) (SignVerifier, error) {
	switch algo {
	case SignHMAC:
		if len(key) == 0 {
			return nil, newConfigError(ErrInvalidKey, string(algo))
		}
		return HMAC(key), nil
	case SignBlake2b:
		return Blake2b(key)
	case SignBlake3:
		return Blake3(key)
	case SignEd25519:
		if len(key) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(key))
		}
		priv := ed25519.NewKeyFromSeed(key)
		pub, _ := priv.Public().(ed25519.PublicKey)
		return &ed25519Pair{ed25519Signer{priv: priv}, ed25519Verifier{pub: pub}}, nil
	}
	return nil, newConfigError(ErrUnknownAlgorithm, string(algo))
}
