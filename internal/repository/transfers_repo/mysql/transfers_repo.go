package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ledger/internal/domain"
	"ledger/internal/repository/transfers_repo"
)

type transferRecord struct {
	ID          string          `gorm:"primaryKey;size:36"`
	FromAccount string          `gorm:"size:64;not null"`
	ToAccount   string          `gorm:"size:64;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Status      string          `gorm:"size:16;not null;index:idx_pending_transfers_status_updated,priority:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index:idx_pending_transfers_status_updated,priority:2"`
}

func (*transferRecord) TableName() string {
	return "pending_transfers"
}

func (r transferRecord) toDomain() domain.PendingTransfer {
	return domain.PendingTransfer{
		ID:          r.ID,
		FromAccount: r.FromAccount,
		ToAccount:   r.ToAccount,
		Amount:      r.Amount,
		Status:      domain.TransferStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&transferRecord{})
}

func (r *TransferRepository) Begin(ctx context.Context, transfer *domain.PendingTransfer) error {
	rec := transferRecord{
		ID:          transfer.ID,
		FromAccount: transfer.FromAccount,
		ToAccount:   transfer.ToAccount,
		Amount:      transfer.Amount,
		Status:      string(transfer.Status),
		CreatedAt:   transfer.CreatedAt,
		UpdatedAt:   transfer.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to journal transfer %s: %w", transfer.ID, err)
	}
	return nil
}

func (r *TransferRepository) SetStatus(ctx context.Context, id string, status domain.TransferStatus) error {
	res := r.db.WithContext(ctx).Model(&transferRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to update transfer status for id %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no transfer found with id %s to update status", id)
	}
	return nil
}

func (r *TransferRepository) SetStatusIf(ctx context.Context, id string, from []domain.TransferStatus, status domain.TransferStatus) (bool, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}
	res := r.db.WithContext(ctx).Model(&transferRecord{}).
		Where("id = ? AND status IN ?", id, froms).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update transfer status for id %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *TransferRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.PendingTransfer, error) {
	var recs []transferRecord
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{string(domain.TransferStatusPending), string(domain.TransferStatusDebited)}, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transfers: %w", err)
	}
	out := make([]domain.PendingTransfer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *TransferRepository) Get(ctx context.Context, id string) (domain.PendingTransfer, error) {
	var rec transferRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PendingTransfer{}, fmt.Errorf("no transfer found with id %s", id)
		}
		return domain.PendingTransfer{}, fmt.Errorf("failed to get transfer %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

var _ transfers_repo.Journal = (*TransferRepository)(nil)
