package crate

import (
	"bytes"
	"errors"
	"testing"
)

var testAESKey = []byte("32-byte-key-for-aes-256-encrypt!")

func TestEncryptors_RoundTrip(t *testing.T) {
	for _, algo := range []EncryptAlgo{EncryptAES, EncryptEnvelope} {
		t.Run(string(algo), func(t *testing.T) {
			enc, err := NewEncryptor(algo, testAESKey)
			if err != nil {
				t.Fatalf("NewEncryptor() error: %v", err)
			}

			plaintext := []byte("hello, world!")
			ciphertext, err := enc.Encrypt(plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			if bytes.Contains(ciphertext, plaintext) {
				t.Error("ciphertext should not contain plaintext")
			}

			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(plaintext, decrypted) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted, plaintext)
			}
		})
	}
}

func TestEncryptors_DifferentNonce(t *testing.T) {
	enc, _ := AES(testAESKey)

	c1, _ := enc.Encrypt([]byte("hello"))
	c2, _ := enc.Encrypt([]byte("hello"))

	if bytes.Equal(c1, c2) {
		t.Error("same plaintext should produce different ciphertext (random nonce)")
	}
}

func TestEncryptors_InvalidKey(t *testing.T) {
	if _, err := AES([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("AES: expected ErrInvalidKey, got %v", err)
	}
	if _, err := Envelope([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Envelope: expected ErrInvalidKey, got %v", err)
	}
	if _, err := NewEncryptor("rsa", testAESKey); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("NewEncryptor: expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestEncryptors_Tampered(t *testing.T) {
	for _, algo := range []EncryptAlgo{EncryptAES, EncryptEnvelope} {
		t.Run(string(algo), func(t *testing.T) {
			enc, _ := NewEncryptor(algo, testAESKey)
			ciphertext, _ := enc.Encrypt([]byte("payload"))
			ciphertext[len(ciphertext)-1] ^= 0xff

			if _, err := enc.Decrypt(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("expected ErrDecryptionFailed, got %v", err)
			}
		})
	}
}

func TestEncryptors_Short(t *testing.T) {
	aesEnc, _ := AES(testAESKey)
	if _, err := aesEnc.Decrypt([]byte{1, 2}); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("AES: expected ErrCiphertextShort, got %v", err)
	}

	env, _ := Envelope(testAESKey)
	if _, err := env.Decrypt([]byte{0}); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("Envelope: expected ErrCiphertextShort, got %v", err)
	}
	if _, err := env.Decrypt([]byte{0, 200, 1}); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("Envelope: expected ErrCiphertextShort, got %v", err)
	}
}

func TestEnvelope_WrongMasterKey(t *testing.T) {
	a, _ := Envelope(testAESKey)
	b, _ := Envelope([]byte("another-32-byte-key-for-testing!"))

	ciphertext, _ := a.Encrypt([]byte("secret"))
	if _, err := b.Decrypt(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}
