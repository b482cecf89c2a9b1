package crate

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// Hasher produces content fingerprints.
type Hasher interface {
	// Hash returns the hex-encoded digest of data.
	Hash(data []byte) (string, error)
}

type sha256Hasher struct{}

// SHA256Hasher returns a SHA-256 hasher.
func SHA256Hasher() Hasher {
	return sha256Hasher{}
}

func (sha256Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type sha512Hasher struct{}

// SHA512Hasher returns a SHA-512 hasher.
func SHA512Hasher() Hasher {
	return sha512Hasher{}
}

func (sha512Hasher) Hash(data []byte) (string, error) {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:]), nil
}

type blake3Hasher struct{}

// Blake3Hasher returns an unkeyed BLAKE3-256 hasher.
func Blake3Hasher() Hasher {
	return blake3Hasher{}
}

func (blake3Hasher) Hash(data []byte) (string, error) {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// builtinHashers returns the default hasher registry.
func builtinHashers() map[HashAlgo]Hasher {
	return map[HashAlgo]Hasher{
		HashSHA256: SHA256Hasher(),
		HashSHA512: SHA512Hasher(),
		HashBlake3: Blake3Hasher(),
	}
}

// Fingerprint hashes data with the named algorithm.
func Fingerprint(algo HashAlgo, data []byte) (string, error) {
	h, ok := builtinHashers()[algo]
	if !ok {
		return "", newConfigError(ErrUnknownAlgorithm, string(algo))
	}
	return h.Hash(data)
}

// Argon2Params configures Argon2id key derivation.
type Argon2Params struct {
	Time    uint32 // Number of iterations
	Memory  uint32 // Memory usage in KiB
	Threads uint8  // Parallelism factor
	KeyLen  uint32 // Output key length
}

// DefaultArgon2Params returns recommended Argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024, // 64 MiB
		Threads: 4,
		KeyLen:  32,
	}
}

// DeriveKey stretches a passphrase into signing or encryption key
// material with Argon2id. The same passphrase and salt always produce
// the same key.
func DeriveKey(passphrase, salt []byte, params Argon2Params) []byte {
	return argon2.IDKey(passphrase, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
}
