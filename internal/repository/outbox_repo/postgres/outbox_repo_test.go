package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/domain"
)

func TestCreateMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	msg := &domain.OutboxMessage{
		ID:          "m-1",
		AggregateID: "acc-1",
		MessageType: string(domain.EventDeposited),
		Topic:       "ledger_events",
		Key:         "acc-1",
		Payload:     []byte(`{"type":"DEPOSITED"}`),
		Status:      domain.OutboxStatusPending,
		CreatedAt:   now,
	}
	mock.ExpectExec(`INSERT INTO outbox_messages`).
		WithArgs("m-1", "acc-1", "DEPOSITED", "ledger_events", "acc-1", msg.Payload, domain.OutboxStatusPending, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewOutboxRepository().CreateMessage(context.Background(), db, msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Now().UTC()
	sent := created.Add(time.Second)
	mock.ExpectQuery(`SELECT .* FROM outbox_messages WHERE status = \$1 ORDER BY created_at ASC LIMIT \$2 FOR UPDATE SKIP LOCKED`).
		WithArgs(domain.OutboxStatusPending, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "message_type", "topic", "key_value", "payload", "status", "created_at", "sent_at"}).
			AddRow("m-1", "acc-1", "WITHDRAWN", "ledger_events", "acc-1", []byte("{}"), "PENDING", created, nil).
			AddRow("m-2", "acc-2", "DEPOSITED", "ledger_events", "acc-2", []byte("{}"), "PENDING", created, sent))

	msgs, err := NewOutboxRepository().GetPendingMessages(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].SentAt)
	require.NotNil(t, msgs[1].SentAt)
	assert.Equal(t, sent, *msgs[1].SentAt)
}

func TestUpdateMessageStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewOutboxRepository()

	mock.ExpectExec(`UPDATE outbox_messages SET status = \$1, sent_at = \$2 WHERE id = \$3`).
		WithArgs(domain.OutboxStatusSent, sqlmock.AnyArg(), "m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateMessageStatus(context.Background(), db, "m-1", domain.OutboxStatusSent))

	mock.ExpectExec(`UPDATE outbox_messages`).
		WithArgs(domain.OutboxStatusFailed, sqlmock.AnyArg(), "m-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateMessageStatus(context.Background(), db, "m-2", domain.OutboxStatusFailed)
	assert.ErrorContains(t, err, "no outbox message found")
}
