package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrAccountNotFound        = errors.New("account not found")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrAccountAlreadyExists   = errors.New("account already exists")
	ErrInvalidOperation       = errors.New("invalid operation")
	ErrCredentialMismatch     = errors.New("credential mismatch")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPersistence            = errors.New("persistence error")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// TransferFailedError reports a transfer whose credit leg failed after the
// sender was debited. Reconciled tells whether the sender was re-credited.
type TransferFailedError struct {
	TransferID string
	Reconciled bool
	Err        error
}

func (e *TransferFailedError) Error() string {
	if e.Reconciled {
		return fmt.Sprintf("transfer %s failed, funds returned to sender: %v", e.TransferID, e.Err)
	}
	return fmt.Sprintf("transfer %s failed, funds in indeterminate state, manual reconciliation required: %v", e.TransferID, e.Err)
}

func (e *TransferFailedError) Unwrap() error {
	return e.Err
}

func (e *TransferFailedError) Is(target error) bool {
	switch target {
	case ErrTransferFailed:
		return true
	case ErrReconciliationRequired:
		return !e.Reconciled
	}
	return false
}

// Persistence wraps a store failure so that errors.Is(err, ErrPersistence)
// holds while the underlying cause stays reachable.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindInvalidAmount          ErrorKind = "INVALID_AMOUNT"
	KindInsufficientFunds      ErrorKind = "INSUFFICIENT_FUNDS"
	KindAccountNotFound        ErrorKind = "ACCOUNT_NOT_FOUND"
	KindRecipientNotFound      ErrorKind = "RECIPIENT_NOT_FOUND"
	KindAccountAlreadyExists   ErrorKind = "ACCOUNT_ALREADY_EXISTS"
	KindInvalidOperation       ErrorKind = "INVALID_OPERATION"
	KindCredentialMismatch     ErrorKind = "CREDENTIAL_MISMATCH"
	KindConcurrentModification ErrorKind = "CONCURRENT_MODIFICATION"
	KindPersistence            ErrorKind = "PERSISTENCE_ERROR"
	KindTransferFailed         ErrorKind = "TRANSFER_FAILED"
	KindReconciliationRequired ErrorKind = "RECONCILIATION_REQUIRED"
	KindInternal               ErrorKind = "INTERNAL"
)

// KindOf classifies err. Order matters: an unreconciled transfer wraps a
// persistence error and must still classify as RECONCILIATION_REQUIRED.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrReconciliationRequired):
		return KindReconciliationRequired
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailed
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrRecipientNotFound):
		return KindRecipientNotFound
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrAccountAlreadyExists):
		return KindAccountAlreadyExists
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrCredentialMismatch):
		return KindCredentialMismatch
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	}
	return KindInternal
}

var userMessages = map[ErrorKind]string{
	KindInvalidAmount:          "The amount must be positive and use at most the currency's minor-unit precision. Please re-enter it.",
	KindInsufficientFunds:      "Insufficient funds for this operation.",
	KindAccountNotFound:        "Account not found. Please check the account identifier.",
	KindRecipientNotFound:      "Recipient account not found. Please check the recipient identifier.",
	KindAccountAlreadyExists:   "An account with this identifier already exists.",
	KindInvalidOperation:       "This operation is not allowed. Please review the request and try again.",
	KindCredentialMismatch:     "The credential could not be verified.",
	KindConcurrentModification: "The account was changed by another session. Reload the balance and retry the operation.",
	KindPersistence:            "The ledger is temporarily unavailable. The operation was not applied; try again later.",
	KindTransferFailed:         "The transfer could not be completed. Funds were returned to your account.",
	KindReconciliationRequired: "ATTENTION: the transfer failed and funds are in an indeterminate state. Contact support; an operator must reconcile this transfer.",
	KindInternal:               "Unexpected internal error.",
}

// UserMessage returns an actionable message for err's kind.
func UserMessage(err error) string {
	return userMessages[KindOf(err)]
}
