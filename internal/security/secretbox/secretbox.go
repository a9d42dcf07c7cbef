// Package secretbox cifra secretos cortos (tokens OAuth de merchants) con AES-256-GCM.
//
// Formato del blob: base64url(nonce ‖ tag ‖ ciphertext), sin padding.
// Cada llamada a Encrypt usa un nonce aleatorio nuevo: el mismo plaintext
// produce un blob distinto en cada llamada.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	nonceSizeGCM      = 12 // AES-GCM nonce recomendado (96 bits)
	tagSizeGCM        = 16
	requiredKeyLength = 32 // 32 bytes => AES-256
)

var (
	// ErrDecryption indica tag inválido, clave incorrecta, blob truncado o corrupto.
	// Nunca se devuelve plaintext parcial junto con este error.
	ErrDecryption = errors.New("secretbox: decryption failed")

	// ErrInvalidKey indica una clave de longitud distinta a 32 bytes.
	ErrInvalidKey = errors.New("secretbox: invalid key length")
)

// Box es seguro para uso concurrente.
type Box struct {
	aead cipher.AEAD
	rand io.Reader
}

// New construye un Box a partir de una clave cruda de 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), requiredKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aesgcm, rand: rand.Reader}, nil
}

// Encrypt cifra plainText y devuelve un blob opaco.
func (b *Box) Encrypt(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	// Seal devuelve ciphertext ‖ tag; lo reordenamos a nonce ‖ tag ‖ ciphertext.
	sealed := b.aead.Seal(nil, nonce, []byte(plainText), nil)
	ctLen := len(sealed) - tagSizeGCM

	out := make([]byte, 0, nonceSizeGCM+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt abre un blob producido por Encrypt.
// Cualquier falla (decode, longitud, autenticación) devuelve ErrDecryption.
func (b *Box) Decrypt(blob string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryption
	}
	if len(raw) < nonceSizeGCM+tagSizeGCM {
		return "", ErrDecryption
	}

	nonce := raw[:nonceSizeGCM]
	tag := raw[nonceSizeGCM : nonceSizeGCM+tagSizeGCM]
	ct := raw[nonceSizeGCM+tagSizeGCM:]

	sealed := make([]byte, 0, len(ct)+tagSizeGCM)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(pt), nil
}
