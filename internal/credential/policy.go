package credential

import (
	"fmt"

	"ledger/internal/domain"
)

// bcrypt rejects input longer than 72 bytes.
const maxCredentialBytes = 72

type Policy struct {
	MinLength  int
	DigitsOnly bool
}

func DefaultPolicy() Policy {
	return Policy{MinLength: 6, DigitsOnly: true}
}

// Validate reports policy violations as domain.ErrInvalidOperation.
func (p Policy) Validate(credential string) error {
	if len(credential) < p.MinLength {
		return fmt.Errorf("%w: credential must be at least %d characters long", domain.ErrInvalidOperation, p.MinLength)
	}
	if len(credential) > maxCredentialBytes {
		return fmt.Errorf("%w: credential must be at most %d bytes long", domain.ErrInvalidOperation, maxCredentialBytes)
	}
	if p.DigitsOnly {
		for _, r := range credential {
			if r < '0' || r > '9' {
				return fmt.Errorf("%w: credential must contain digits only", domain.ErrInvalidOperation)
			}
		}
	}
	return nil
}
