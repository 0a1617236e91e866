package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/domain"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, "123456", hash)

	assert.True(t, h.Verify(hash, "123456"))
	assert.False(t, h.Verify(hash, "654321"))
	assert.False(t, h.Verify("", "123456"))
}

func TestBcryptHasherSalts(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	a, err := h.Hash("123456")
	require.NoError(t, err)
	b, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
}

func TestPolicyValidate(t *testing.T) {
	p := Policy{MinLength: 4, DigitsOnly: true}

	assert.NoError(t, p.Validate("1234"))
	assert.ErrorIs(t, p.Validate("12"), domain.ErrInvalidOperation)
	assert.ErrorIs(t, p.Validate("12a4"), domain.ErrInvalidOperation)
	assert.ErrorIs(t, p.Validate(strings.Repeat("1", 73)), domain.ErrInvalidOperation)

	loose := Policy{MinLength: 8}
	assert.NoError(t, loose.Validate("correct-horse"))
	assert.ErrorIs(t, loose.Validate("short"), domain.ErrInvalidOperation)
}

func TestDefaultPolicyIsStricterThanFourDigits(t *testing.T) {
	assert.ErrorIs(t, DefaultPolicy().Validate("1234"), domain.ErrInvalidOperation)
	assert.NoError(t, DefaultPolicy().Validate("123456"))
}
