package crate

// SignAlgo represents a supported payload signature algorithm.
type SignAlgo string

const (
	// SignHMAC uses HMAC-SHA256 with a shared secret.
	SignHMAC SignAlgo = "hmac-sha256"

	// SignBlake2b uses keyed BLAKE2b-256 (keys up to 64 bytes).
	SignBlake2b SignAlgo = "blake2b"

	// SignBlake3 uses keyed BLAKE3 (32-byte keys).
	SignBlake3 SignAlgo = "blake3"

	// SignEd25519 uses Ed25519. The key is a 32-byte seed.
	SignEd25519 SignAlgo = "ed25519"
)

// HashAlgo represents a supported fingerprint algorithm.
type HashAlgo string

const (
	// HashSHA256 uses SHA-256.
	HashSHA256 HashAlgo = "sha256"

	// HashSHA512 uses SHA-512.
	HashSHA512 HashAlgo = "sha512"

	// HashBlake3 uses unkeyed BLAKE3-256.
	HashBlake3 HashAlgo = "blake3"
)

// CompressAlgo represents a supported payload compression algorithm.
// Implementations live in the compress package.
type CompressAlgo string

const (
	CompressZstd   CompressAlgo = "zstd"
	CompressLZ4    CompressAlgo = "lz4"
	CompressSnappy CompressAlgo = "snappy"
)

// EncryptAlgo represents a supported payload encryption algorithm.
type EncryptAlgo string

const (
	// EncryptAES uses AES-GCM with a fixed key.
	EncryptAES EncryptAlgo = "aes"

	// EncryptEnvelope uses AES-GCM with a fresh data key per payload,
	// wrapped by a master key.
	EncryptEnvelope EncryptAlgo = "envelope"
)

// validSignAlgos contains all valid signature algorithms.
var validSignAlgos = map[SignAlgo]bool{
	SignHMAC:    true,
	SignBlake2b: true,
	SignBlake3:  true,
	SignEd25519: true,
}

// validHashAlgos contains all valid fingerprint algorithms.
var validHashAlgos = map[HashAlgo]bool{
	HashSHA256: true,
	HashSHA512: true,
	HashBlake3: true,
}

// validCompressAlgos contains all valid compression algorithms.
var validCompressAlgos = map[CompressAlgo]bool{
	CompressZstd:   true,
	CompressLZ4:    true,
	CompressSnappy: true,
}

// validEncryptAlgos contains all valid encryption algorithms.
var validEncryptAlgos = map[EncryptAlgo]bool{
	EncryptAES:      true,
	EncryptEnvelope: true,
}

// IsValidSignAlgo returns true if the algorithm is a known signature algorithm.
func IsValidSignAlgo(algo SignAlgo) bool {
	return validSignAlgos[algo]
}

// IsValidHashAlgo returns true if the algorithm is a known hash algorithm.
func IsValidHashAlgo(algo HashAlgo) bool {
	return validHashAlgos[algo]
}

// IsValidCompressAlgo returns true if the algorithm is a known compression algorithm.
func IsValidCompressAlgo(algo CompressAlgo) bool {
	return validCompressAlgos[algo]
}

// IsValidEncryptAlgo returns true if the algorithm is a known encryption algorithm.
func IsValidEncryptAlgo(algo EncryptAlgo) bool {
	return validEncryptAlgos[algo]
}
