package crate

import "bytes"

// maxSignatureLen bounds the first line of a sealed payload. Anything
// longer is treated as unsigned data.
const maxSignatureLen = 512

// Seal prefixes payload with "@<signature>\n". A nil signer returns the
// payload unchanged.
func Seal(payload []byte, signer Signer) []byte {
	if signer == nil {
		return payload
	}
	sig := signer.Sign(payload)
	out := make([]byte, 0, len(sig)+len(payload)+2)
	out = append(out, '@')
	out = append(out, sig...)
	out = append(out, '\n')
	return append(out, payload...)
}

// Open strips and checks the signature envelope. It fails closed in both
// directions: signed data without a verifier and unsigned data with a
// verifier are both rejected with an IntegrityError.
func Open(data []byte, verifier Verifier) ([]byte, error) {
	sig, payload, signed := splitSignature(data)
	if verifier == nil {
		if signed {
			return nil, newIntegrityError(ErrSignatureUnexpected)
		}
		return data, nil
	}
	if !signed {
		return nil, newIntegrityError(ErrSignatureMissing)
	}
	if !verifier.Verify(sig, payload) {
		return nil, newIntegrityError(ErrSignatureInvalid)
	}
	return payload, nil
}

// IsSealed reports whether data starts with a signature line.
func IsSealed(data []byte) bool {
	_, _, ok := splitSignature(data)
	return ok
}

// splitSignature recognises "@sig\n" where sig is a non-empty run of
// base64 or hex characters. Binary codecs can start with '@' by chance,
// so the line must look like a signature to count.
func splitSignature(data []byte) (string, []byte, bool) {
	if len(data) == 0 || data[0] != '@' {
		return "", data, false
	}
	end := bytes.IndexByte(data, '\n')
	if end < 2 || end > maxSignatureLen+1 {
		return "", data, false
	}
	line := data[1:end]
	for _, c := range line {
		if !isSignatureByte(c) {
			return "", data, false
		}
	}
	return string(line), data[end+1:], true
}

func isSignatureByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/', c == '=', c == '-', c == '_':
		return true
	}
	return false
}
