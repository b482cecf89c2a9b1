package crate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrIntegrity indicates the payload envelope failed verification.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrSignatureMissing indicates a verifier is configured but the payload is unsigned.
	ErrSignatureMissing = errors.New("payload is not signed")

	// ErrSignatureUnexpected indicates a signed payload reached a serializer without a verifier.
	ErrSignatureUnexpected = errors.New("payload is signed but no verifier is configured")

	// ErrSignatureInvalid indicates the signature does not match the payload.
	ErrSignatureInvalid = errors.New("signature mismatch")

	// ErrUnresolvableType indicates a type name could not be mapped to a Go type.
	ErrUnresolvableType = errors.New("unresolvable type")

	// ErrMalformedBox indicates a tree that does not have the expected shape.
	ErrMalformedBox = errors.New("malformed box")

	// ErrDanglingReference indicates a reference that was never satisfied.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrUnsupportedValue indicates a value that cannot be boxed.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrDepthExceeded indicates the value graph nests deeper than allowed.
	ErrDepthExceeded = errors.New("maximum depth exceeded")

	// ErrNoLoader indicates a function value was found but no Loader is configured.
	ErrNoLoader = errors.New("no code loader configured")

	// ErrNotCallable indicates a Func without an implementation was called.
	ErrNotCallable = errors.New("function has no implementation")

	// ErrInvalidTarget indicates an unbox destination that is not a non-nil pointer.
	ErrInvalidTarget = errors.New("unbox target must be a non-nil pointer")

	// ErrUnmarshal indicates the codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates the codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")

	// ErrCompress indicates the payload could not be compressed.
	ErrCompress = errors.New("compress failed")

	// ErrDecompress indicates the payload could not be decompressed.
	ErrDecompress = errors.New("decompress failed")

	// ErrEncrypt indicates encryption of the payload failed.
	ErrEncrypt = errors.New("encrypt failed")

	// ErrDecrypt indicates decryption of the payload failed.
	ErrDecrypt = errors.New("decrypt failed")

	// ErrInvalidKey indicates a key has invalid size or format.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnknownAlgorithm indicates an algorithm name that is not supported.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// IntegrityError is returned when the signature envelope cannot be
// trusted. Reason is one of ErrSignatureMissing, ErrSignatureUnexpected
// or ErrSignatureInvalid.
type IntegrityError struct {
	Reason error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %v", ErrIntegrity.Error(), e.Reason)
}

func (e *IntegrityError) Unwrap() []error {
	return []error{ErrIntegrity, e.Reason}
}

// UnresolvableTypeError names a type that is not registered and cannot
// be parsed from its name.
type UnresolvableTypeError struct {
	Type string
}

func (e *UnresolvableTypeError) Error() string {
	return fmt.Sprintf("%s %q", ErrUnresolvableType.Error(), e.Type)
}

func (e *UnresolvableTypeError) Unwrap() error {
	return ErrUnresolvableType
}

// MalformedBoxError describes a tree node with an unexpected shape.
type MalformedBoxError struct {
	Kind   string // Node or box kind being decoded
	Reason string
}

func (e *MalformedBoxError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s: %s", ErrMalformedBox.Error(), e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedBox.Error(), e.Reason)
}

func (e *MalformedBoxError) Unwrap() error {
	return ErrMalformedBox
}

// DanglingReferenceError lists the node IDs that were referenced but
// never finished.
type DanglingReferenceError struct {
	IDs []uint64
}

func (e *DanglingReferenceError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("%s: %s", ErrDanglingReference.Error(), strings.Join(ids, ", "))
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrDanglingReference
}

// UnsupportedValueError names a value the engine refuses to box.
type UnsupportedValueError struct {
	Type   string
	Reason string
}

func (e *UnsupportedValueError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s of type %s: %s", ErrUnsupportedValue.Error(), e.Type, e.Reason)
	}
	return fmt.Sprintf("%s of type %s", ErrUnsupportedValue.Error(), e.Type)
}

func (e *UnsupportedValueError) Unwrap() error {
	return ErrUnsupportedValue
}

// CodecError represents a failure in one of the payload stages:
// marshal/unmarshal, compression or encryption.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrDecompress, etc.)
	Cause error // Original error from the stage
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid serializer or signer configuration.
type ConfigError struct {
	Err       error  // Underlying sentinel error (ErrInvalidKey, ErrUnknownAlgorithm)
	Algorithm string // Algorithm that was missing or invalid
}

func (e *ConfigError) Error() string {
	if e.Algorithm != "" {
		return fmt.Sprintf("%s for algorithm %q", e.Err.Error(), e.Algorithm)
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newIntegrityError(reason error) error {
	return &IntegrityError{Reason: reason}
}

func newMalformed(kind Kind, format string, args ...any) error {
	return &MalformedBoxError{Kind: string(kind), Reason: fmt.Sprintf(format, args...)}
}

func newCodecError(sentinel error, cause error) error {
	return &CodecError{
		Err:   sentinel,
		Cause: cause,
	}
}

func newConfigError(sentinel error, algorithm string) error {
	return &ConfigError{
		Err:       sentinel,
		Algorithm: algorithm,
	}
}
