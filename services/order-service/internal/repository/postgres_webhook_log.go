package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"bakehouse-system/services/order-service/internal/domain"
)

// PostgresWebhookLog stores the idempotency record of every inbound
// provider notification, keyed by payment id. Records are upserted,
// never deleted.
type PostgresWebhookLog struct {
	db *sqlx.DB
}

func NewPostgresWebhookLog(db *sqlx.DB) *PostgresWebhookLog {
	return &PostgresWebhookLog{db: db}
}

type webhookRow struct {
	PaymentID     string         `db:"payment_id"`
	RequestID     sql.NullString `db:"request_id"`
	Topic         string         `db:"topic"`
	PaymentStatus sql.NullString `db:"payment_status"`
	Reference     sql.NullString `db:"reference"`
	RawExcerpt    string         `db:"raw_excerpt"`
	Processed     bool           `db:"processed"`
	ErrorDetail   sql.NullString `db:"error_detail"`
	ReceivedAt    time.Time      `db:"received_at"`
	ProcessedAt   sql.NullTime   `db:"processed_at"`
}

func (r *PostgresWebhookLog) Get(ctx context.Context, paymentID string) (*domain.WebhookEvent, error) {
	var row webhookRow
	err := r.db.GetContext(ctx, &row,
		`SELECT payment_id, request_id, topic, payment_status, reference, raw_excerpt,
		        processed, error_detail, received_at, processed_at
		 FROM webhook_events WHERE payment_id = $1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ev := &domain.WebhookEvent{
		PaymentID:     row.PaymentID,
		RequestID:     row.RequestID.String,
		Topic:         row.Topic,
		PaymentStatus: row.PaymentStatus.String,
		Reference:     row.Reference.String,
		RawExcerpt:    row.RawExcerpt,
		Processed:     row.Processed,
		ErrorDetail:   row.ErrorDetail.String,
		ReceivedAt:    row.ReceivedAt,
	}
	if row.ProcessedAt.Valid {
		t := row.ProcessedAt.Time
		ev.ProcessedAt = &t
	}
	return ev, nil
}

func (r *PostgresWebhookLog) Save(ctx context.Context, ev *domain.WebhookEvent) error {
	var processedAt sql.NullTime
	if ev.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *ev.ProcessedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events
		   (payment_id, request_id, topic, payment_status, reference, raw_excerpt,
		    processed, error_detail, received_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (payment_id) DO UPDATE SET
		   request_id = EXCLUDED.request_id,
		   topic = EXCLUDED.topic,
		   payment_status = EXCLUDED.payment_status,
		   reference = EXCLUDED.reference,
		   raw_excerpt = EXCLUDED.raw_excerpt,
		   processed = EXCLUDED.processed,
		   error_detail = EXCLUDED.error_detail,
		   processed_at = EXCLUDED.processed_at`,
		ev.PaymentID, ev.RequestID, ev.Topic, ev.PaymentStatus, ev.Reference,
		ev.RawExcerpt, ev.Processed, ev.ErrorDetail, ev.ReceivedAt, processedAt)
	return err
}
