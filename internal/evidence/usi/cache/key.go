// Package cache remembers definitive verification outcomes so repeated saves
// of the same profile do not spend remote quota.
package cache

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"

	"usiverify/internal/evidence/usi/models"
)

// Keyer derives cache keys and log fingerprints with a keyed BLAKE2b hash, so
// neither carries the USI, names or date of birth in the clear.
type Keyer struct {
	secret []byte
}

// NewKeyer builds a Keyer. Secrets longer than the BLAKE2b key limit are hashed down.
func NewKeyer(secret string) *Keyer {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Keyer{secret: key}
}

func (k *Keyer) newHash() hash.Hash {
	h, err := blake2b.New256(k.secret)
	if err != nil {
		// Only possible for keys over 64 bytes, which NewKeyer prevents.
		panic(err)
	}
	return h
}

// Key identifies one verification request.
func (k *Keyer) Key(req models.VerificationRequest) string {
	h := k.newHash()
	for _, part := range []string{req.USI.String(), req.FirstName, req.FamilyName, req.DateOfBirth.String()} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint is a short stable token for correlating one USI across log lines.
func (k *Keyer) Fingerprint(usi string) string {
	h := k.newHash()
	_, _ = h.Write([]byte("usi:"))
	_, _ = h.Write([]byte(usi))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
