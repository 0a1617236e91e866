package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerEventType string

const (
	EventDeposited              LedgerEventType = "DEPOSITED"
	EventWithdrawn              LedgerEventType = "WITHDRAWN"
	EventTransferCompleted      LedgerEventType = "TRANSFER_COMPLETED"
	EventTransferCompensated    LedgerEventType = "TRANSFER_COMPENSATED"
	EventReconciliationRequired LedgerEventType = "RECONCILIATION_REQUIRED"
	EventCredentialChanged      LedgerEventType = "CREDENTIAL_CHANGED"
)

// LedgerEvent is published after a mutation has been persisted. It never
// carries credential material.
type LedgerEvent struct {
	ID             string           `json:"id"`
	Type           LedgerEventType  `json:"type"`
	AccountID      string           `json:"account_id"`
	CounterpartyID string           `json:"counterparty_id,omitempty"`
	TransferID     string           `json:"transfer_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Balance        *decimal.Decimal `json:"balance,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

func NewLedgerEvent(eventType LedgerEventType, accountID string, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: now,
	}
}

func (e LedgerEvent) WithAmount(amount decimal.Decimal) LedgerEvent {
	e.Amount = &amount
	return e
}

func (e LedgerEvent) WithBalance(balance decimal.Decimal) LedgerEvent {
	e.Balance = &balance
	return e
}

func (e LedgerEvent) WithTransfer(t *PendingTransfer) LedgerEvent {
	e.TransferID = t.ID
	e.CounterpartyID = t.ToAccount
	e.Amount = &t.Amount
	return e
}
