package crate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Encryption errors.
var (
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor is an optional payload stage. It runs after compression on
// the way out, so the signature covers the ciphertext.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal prepends a random nonce to the sealed plaintext.
func seal(gcm cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func unseal(gcm cipher.AEAD, data []byte) ([]byte, error) {
	n := gcm.NonceSize()
	if len(data) < n {
		return nil, ErrCiphertextShort
	}
	plaintext, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

type aesEncryptor struct {
	gcm cipher.AEAD
}

// AES returns an AES-GCM encryptor.
// Key must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
func AES(key []byte) (Encryptor, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &aesEncryptor{gcm: gcm}, nil
}

func (e *aesEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	return seal(e.gcm, plaintext)
}

func (e *aesEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	return unseal(e.gcm, ciphertext)
}

// envelopeEncryptor seals every payload with a fresh data key and stores
// that key, sealed by the master key, in front of the payload:
//
//	[uint16 wrapped key length][wrapped key][sealed payload]
type envelopeEncryptor struct {
	master cipher.AEAD
}

const dataKeySize = 32

// Envelope returns an envelope encryptor using a master key.
// Master key must be 16, 24, or 32 bytes.
func Envelope(masterKey []byte) (Encryptor, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	return &envelopeEncryptor{master: gcm}, nil
}

func (e *envelopeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	dataKey := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, err
	}
	data, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	body, err := seal(data, plaintext)
	if err != nil {
		return nil, err
	}
	wrapped, err := seal(e.master, dataKey)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 2, 2+len(wrapped)+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(wrapped))) // #nosec G115 -- wrapped key is 60 bytes
	out = append(out, wrapped...)
	return append(out, body...), nil
}

func (e *envelopeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2 {
		return nil, ErrCiphertextShort
	}
	n := int(binary.BigEndian.Uint16(ciphertext))
	if len(ciphertext) < 2+n {
		return nil, ErrCiphertextShort
	}
	dataKey, err := unseal(e.master, ciphertext[2:2+n])
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}
	data, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	return unseal(data, ciphertext[2+n:])
}

// NewEncryptor returns the encryptor for algo keyed with key.
func NewEncryptor(algo EncryptAlgo, key []byte) (Encryptor, error) {
	switch algo {
	case EncryptAES:
		return AES(key)
	case EncryptEnvelope:
		return Envelope(key)
	}
	return nil, newConfigError(ErrUnknownAlgorithm, string(algo))
}
