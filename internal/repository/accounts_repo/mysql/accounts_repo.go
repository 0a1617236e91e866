package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

// accountRecord maps the accounts table.
type accountRecord struct {
	ID             string          `gorm:"primaryKey;size:64"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Version        int64           `gorm:"not null;default:0"`
	CredentialHash string          `gorm:"size:255;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (*accountRecord) TableName() string {
	return "accounts"
}

type accountStore struct {
	db   *gorm.DB
	lock bool
}

// AccountRepository is the GORM/MySQL AccountStore. Balance reads inside
// WithTransaction use SELECT ... FOR UPDATE.
type AccountRepository struct {
	*accountStore
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{accountStore: &accountStore{db: db}}
}

// AutoMigrate creates or updates the accounts table.
func (r *AccountRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&accountRecord{})
}

func (s *accountStore) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	q := s.db.WithContext(ctx)
	if s.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec accountRecord
	if err := q.Select("balance", "version").Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Balance{}, domain.ErrAccountNotFound
		}
		return domain.Balance{}, fmt.Errorf("failed to get balance for account %s: %w", id, err)
	}
	return domain.Balance{Amount: rec.Balance, Version: rec.Version}, nil
}

func (s *accountStore) GetCredentialHash(ctx context.Context, id string) (string, error) {
	var rec accountRecord
	err := s.db.WithContext(ctx).Select("credential_hash").Where("id = ?", id).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrAccountNotFound
		}
		return "", fmt.Errorf("failed to get credential hash for account %s: %w", id, err)
	}
	return rec.CredentialHash, nil
}

func (s *accountStore) SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("refusing to store negative balance %s for account %s", amount, id)
	}
	res := s.db.WithContext(ctx).Model(&accountRecord{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"balance":    amount,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update balance for account %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *accountStore) SetCredentialHash(ctx context.Context, id, expectedHash, newHash string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&accountRecord{}).
		Where("id = ? AND credential_hash = ?", id, expectedHash).
		Updates(map[string]any{
			"credential_hash": newHash,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update credential for account %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *accountStore) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&accountRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check account %s: %w", id, err)
	}
	return count > 0, nil
}

func (s *accountStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	rec := accountRecord{
		ID:             account.ID,
		Balance:        account.Balance,
		Version:        account.Version,
		CredentialHash: account.CredentialHash,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

func (r *AccountRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, store accounts_repo.AccountStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &accountStore{db: tx, lock: true})
	})
}

var (
	_ accounts_repo.AccountStore = (*AccountRepository)(nil)
	_ accounts_repo.Transactor   = (*AccountRepository)(nil)
	_ accounts_repo.Provisioner  = (*AccountRepository)(nil)
)
