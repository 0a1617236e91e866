package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain"
	"ledger/internal/repository/transfers_repo"
)

type Journal struct {
	mu      sync.Mutex
	records map[string]domain.PendingTransfer
	now     func() time.Time
}

func NewJournal() *Journal {
	return &Journal{
		records: make(map[string]domain.PendingTransfer),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *Journal) Begin(ctx context.Context, transfer *domain.PendingTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.records[transfer.ID]; ok {
		return fmt.Errorf("transfer %s already journaled", transfer.ID)
	}
	j.records[transfer.ID] = *transfer
	return nil
}

func (j *Journal) SetStatus(ctx context.Context, id string, status domain.TransferStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[id]
	if !ok {
		return fmt.Errorf("no transfer found with id %s", id)
	}
	rec.Status = status
	rec.UpdatedAt = j.now()
	j.records[id] = rec
	return nil
}

func (j *Journal) SetStatusIf(ctx context.Context, id string, from []domain.TransferStatus, status domain.TransferStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[id]
	if !ok {
		return false, fmt.Errorf("no transfer found with id %s", id)
	}
	if !slices.Contains(from, rec.Status) {
		return false, nil
	}
	rec.Status = status
	rec.UpdatedAt = j.now()
	j.records[id] = rec
	return true, nil
}

func (j *Journal) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.PendingTransfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.PendingTransfer
	for _, rec := range j.records {
		if !rec.Status.Terminal() && rec.UpdatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *Journal) Get(ctx context.Context, id string) (domain.PendingTransfer, error) {
	if err := ctx.Err(); err != nil {
		return domain.PendingTransfer{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[id]
	if !ok {
		return domain.PendingTransfer{}, fmt.Errorf("no transfer found with id %s", id)
	}
	return rec, nil
}

var _ transfers_repo.Journal = (*Journal)(nil)
