package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// maxOutboxRetries is the number of failed publishes after which a message
// is parked as failed.
const maxOutboxRetries = 5

const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
	OutboxFailed    = "failed"
)

type OutboxMessage struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
	Status     string          `json:"status"`
}

type OutboxRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewOutboxRepository(db *sql.DB, dialect Dialect) *OutboxRepository {
	return &OutboxRepository{db: db, dialect: dialect}
}

func (r *OutboxRepository) Create(ctx context.Context, routingKey string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	query := r.dialect.Rebind(`
		INSERT INTO outbox_messages (id, routing_key, payload, status, created_at)
		VALUES ($1, $2, $3, 'pending', $4)
	`)
	_, err = r.db.ExecContext(ctx, query, uuid.NewString(), routingKey, string(payloadBytes), time.Now().UTC())
	return err
}

// GetPendingMessages returns the oldest pending messages first. A single
// worker drains the table, so rows are not locked.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]OutboxMessage, error) {
	query := r.dialect.Rebind(`
		SELECT id, routing_key, payload, retry_count, last_error, status
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var payload []byte
		var lastError sql.NullString
		err := rows.Scan(
			&m.ID,
			&m.RoutingKey,
			&payload,
			&m.RetryCount,
			&lastError,
			&m.Status,
		)
		if err != nil {
			return nil, err
		}
		m.Payload = payload
		if lastError.Valid {
			m.LastError = &lastError.String
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *OutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	query := r.dialect.Rebind(`
		UPDATE outbox_messages
		SET status = 'published', published_at = $2
		WHERE id = $1
	`)
	_, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	return err
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	query := r.dialect.Rebind(`
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`)
	_, err := r.db.ExecContext(ctx, query, id, errMsg, maxOutboxRetries)
	return err
}

func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := r.dialect.Rebind(`
		DELETE FROM outbox_messages
		WHERE status = 'published' AND published_at < $1
	`)
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OutboxRepository) GetStats(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM outbox_messages
		GROUP BY status
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}

	return stats, rows.Err()
}
