package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID             string
	Balance        decimal.Decimal
	Version        int64
	CredentialHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance is a balance read together with the version it was read at.
// A write is accepted by a store only against the version it was computed from.
type Balance struct {
	Amount  decimal.Decimal
	Version int64
}
