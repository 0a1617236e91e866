package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns credentials into salted verifiers and checks candidates
// against them. Verify must run in time independent of where a mismatch occurs.
type Hasher interface {
	Hash(credential string) (string, error)
	Verify(hash, credential string) bool
	// VerifyDummy burns the same work as Verify for identifiers that have
	// no stored hash.
	VerifyDummy(credential string)
}

type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, credential string) bool {
	if hash == "" {
		h.VerifyDummy(credential)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}

func (h *BcryptHasher) VerifyDummy(credential string) {
	h.dummyOnce.Do(func() {
		secret := make([]byte, 16)
		_, _ = rand.Read(secret)
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(credential))
}

var _ Hasher = (*BcryptHasher)(nil)
