package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ledger/internal/domain"
	"ledger/internal/repository/transfers_repo"
)

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Begin(ctx context.Context, transfer *domain.PendingTransfer) error {
	query := `
		INSERT INTO pending_transfers (id, from_account, to_account, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		transfer.ID,
		transfer.FromAccount,
		transfer.ToAccount,
		transfer.Amount,
		transfer.Status,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to journal transfer %s: %w", transfer.ID, err)
	}
	return nil
}

func (r *TransferRepository) SetStatus(ctx context.Context, id string, status domain.TransferStatus) error {
	query := `
		UPDATE pending_transfers
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update transfer status for id %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for transfer update (id %s): %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no transfer found with id %s to update status", id)
	}
	return nil
}

// SetStatusIf cannot tell a missing record from one in another status;
// both report false.
func (r *TransferRepository) SetStatusIf(ctx context.Context, id string, from []domain.TransferStatus, status domain.TransferStatus) (bool, error) {
	query := `
		UPDATE pending_transfers
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to update transfer status for id %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for transfer update (id %s): %w", id, err)
	}
	return rowsAffected > 0, nil
}

func statusStrings(statuses []domain.TransferStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *TransferRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.PendingTransfer, error) {
	query := `
		SELECT id, from_account, to_account, amount, status, created_at, updated_at
		FROM pending_transfers
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		domain.TransferStatusPending, domain.TransferStatusDebited, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.PendingTransfer
	for rows.Next() {
		var t domain.PendingTransfer
		if err := rows.Scan(&t.ID, &t.FromAccount, &t.ToAccount, &t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return transfers, nil
}

func (r *TransferRepository) Get(ctx context.Context, id string) (domain.PendingTransfer, error) {
	query := `
		SELECT id, from_account, to_account, amount, status, created_at, updated_at
		FROM pending_transfers
		WHERE id = $1
	`
	var t domain.PendingTransfer
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.FromAccount, &t.ToAccount, &t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PendingTransfer{}, fmt.Errorf("no transfer found with id %s", id)
		}
		return domain.PendingTransfer{}, fmt.Errorf("failed to get transfer %s: %w", id, err)
	}
	return t, nil
}

var _ transfers_repo.Journal = (*TransferRepository)(nil)
