package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending       TransferStatus = "PENDING"
	TransferStatusDebited       TransferStatus = "DEBITED"
	TransferStatusCompleted     TransferStatus = "COMPLETED"
	TransferStatusCompensated   TransferStatus = "COMPENSATED"
	TransferStatusFailed        TransferStatus = "FAILED"
	TransferStatusIndeterminate TransferStatus = "INDETERMINATE"
)

// Terminal reports whether no further automatic transition is expected.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusCompensated, TransferStatusFailed, TransferStatusIndeterminate:
		return true
	}
	return false
}

// PendingTransfer is the durable journal record of one transfer attempt.
type PendingTransfer struct {
	ID          string
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal
	Status      TransferStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPendingTransfer(from, to string, amount decimal.Decimal, now time.Time) *PendingTransfer {
	return &PendingTransfer{
		ID:          uuid.NewString(),
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Status:      TransferStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
