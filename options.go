package crate

import "go.uber.org/zap"

// DefaultMaxDepth bounds nesting while boxing and unboxing.
const DefaultMaxDepth = 10000

// BindPolicy decides whether a closure's receiver and scope are written.
type BindPolicy uint8

const (
	// BindAuto writes the receiver only when the code uses it and is not
	// static, and the scope when the code uses it or a receiver is kept.
	BindAuto BindPolicy = iota

	// BindAlways writes whatever the closure is bound to.
	BindAlways

	// BindNever writes closures unbound.
	BindNever
)

// Option configures a Serializer.
type Option func(*Serializer)

// WithSigner signs serialized output.
func WithSigner(s Signer) Option {
	return func(sr *Serializer) { sr.signer = s }
}

// WithVerifier requires and checks signatures on input.
func WithVerifier(v Verifier) Option {
	return func(sr *Serializer) { sr.verifier = v }
}

// WithKey signs and verifies with HMAC-SHA256 over secret.
func WithKey(secret []byte) Option {
	return func(sr *Serializer) {
		h := HMAC(secret)
		sr.signer, sr.verifier = h, h
	}
}

// WithExtractor sets the Extractor used for function values.
func WithExtractor(x Extractor) Option {
	return func(sr *Serializer) { sr.extractor = x }
}

// WithLoader sets the Loader used to rebuild function values.
func WithLoader(l Loader) Option {
	return func(sr *Serializer) { sr.loader = l }
}

// WithBindPolicy sets how closure bindings are written.
func WithBindPolicy(p BindPolicy) Option {
	return func(sr *Serializer) { sr.policy = p }
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(sr *Serializer) {
		if n > 0 {
			sr.maxDepth = n
		}
	}
}

// WithCompressor compresses the encoded tree before sealing.
func WithCompressor(c Compressor) Option {
	return func(sr *Serializer) { sr.compressor = c }
}

// WithEncryptor encrypts the (compressed) payload before sealing.
func WithEncryptor(e Encryptor) Option {
	return func(sr *Serializer) { sr.encryptor = e }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(sr *Serializer) {
		if l != nil {
			sr.logger = l
		}
	}
}
