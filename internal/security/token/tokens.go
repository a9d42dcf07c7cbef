package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding (para guardar en DB).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA256Hex devuelve sha256(input) en hexadecimal.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// HMACSHA256Hex devuelve HMAC-SHA256(key, parts...) en hex.
func HMACSHA256Hex(key []byte, parts ...string) string {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		_, _ = mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualHex compara dos hashes hex en tiempo constante.
// Un decode inválido cuenta como distinto.
func EqualHex(a, b string) bool {
	ab, err1 := hex.DecodeString(a)
	bb, err2 := hex.DecodeString(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(ab, bb)
}

// Fingerprint devuelve un prefijo corto del hash, apto para logs.
// No permite recuperar el secreto.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	return SHA256Base64URL(s)[:8]
}
