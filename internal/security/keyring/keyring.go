// Package keyring deriva subclaves independientes a partir de la clave maestra
// (SECRETBOX_MASTER_KEY) usando HKDF-SHA256.
//
// Cada propósito usa un "info" distinto, así comprometer una subclave no
// expone a las demás ni a la maestra.
package keyring

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	requiredKeyLength = 32

	infoEncryption = "posgate/v1/credential-encryption"
	infoAPIKey     = "posgate/v1/api-key-pepper"
	infoSession    = "posgate/v1/session-signing"
)

// ErrInvalidMasterKey indica clave maestra ausente o con longitud incorrecta.
var ErrInvalidMasterKey = errors.New("keyring: invalid master key")

// Keyring guarda la clave maestra; las subclaves se derivan bajo demanda.
type Keyring struct {
	master []byte
}

// New acepta la clave maestra cruda (32 bytes).
func New(master []byte) (*Keyring, error) {
	if len(master) != requiredKeyLength {
		return nil, fmt.Errorf("%w: %d bytes (requiere %d)", ErrInvalidMasterKey, len(master), requiredKeyLength)
	}
	cp := make([]byte, len(master))
	copy(cp, master)
	return &Keyring{master: cp}, nil
}

// Parse decodifica la clave maestra desde base64 (std o raw) o hex.
func Parse(s string) (*Keyring, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty; genere una con: openssl rand -base64 32", ErrInvalidMasterKey)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return New(b)
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return New(b)
	}
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return New(b)
		}
	}
	return nil, fmt.Errorf("%w: no decodifica a %d bytes", ErrInvalidMasterKey, requiredKeyLength)
}

func (k *Keyring) derive(info string) []byte {
	out := make([]byte, requiredKeyLength)
	r := hkdf.New(sha256.New, k.master, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf sólo falla si se piden más de 255*HashLen bytes
		panic(fmt.Sprintf("keyring: hkdf: %v", err))
	}
	return out
}

// EncryptionKey es la clave AES-256 del vault de credenciales.
func (k *Keyring) EncryptionKey() []byte { return k.derive(infoEncryption) }

// APIKeyPepper es la clave HMAC con la que se hashean los secretos de API keys.
func (k *Keyring) APIKeyPepper() []byte { return k.derive(infoAPIKey) }

// SessionSeed es la semilla Ed25519 (32 bytes) para firmar tokens de sesión.
func (k *Keyring) SessionSeed() []byte { return k.derive(infoSession) }
