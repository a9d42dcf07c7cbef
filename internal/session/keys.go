package session

import (
	"crypto/ed25519"
	"fmt"

	tokens "github.com/dropDatabas3/posgate/internal/security/token"
)

// signingKey par Ed25519 derivado de una semilla determinística; el kid es
// el fingerprint de la clave pública.
type signingKey struct {
	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newSigningKey(seed []byte) (*signingKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("session: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &signingKey{kid: tokens.Fingerprint(string(pub)), priv: priv, pub: pub}, nil
}
