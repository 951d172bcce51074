// order-service/internal/repository/postgres_order.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"bakehouse-system/services/order-service/internal/domain"
)

// transitionRetries bounds how often a serialization conflict is retried
// before the transition is reported as failed.
const transitionRetries = 3

type PostgresOrderRepo struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewPostgresOrderRepo(db *sqlx.DB, log zerolog.Logger) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db, log: log}
}

type orderRow struct {
	ID        string         `db:"id"`
	Reference string         `db:"reference"`
	Payer     string         `db:"payer_email"`
	Total     float64        `db:"total"`
	Status    string         `db:"status"`
	PaymentID sql.NullString `db:"payment_id"`
	PrefID    sql.NullString `db:"preference_id"`
	CreatedAt time.Time      `db:"created_at"`
}

type orderItemRow struct {
	OrderID     string  `db:"order_id"`
	ProductID   string  `db:"product_id"`
	ProductName string  `db:"product_name"`
	Quantity    int     `db:"quantity"`
	UnitPrice   float64 `db:"unit_price"`
	Subtotal    float64 `db:"subtotal"`
}

func (r *PostgresOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, reference, payer_email, total, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.Reference, order.PayerEmail, order.Total, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	for _, it := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.Subtotal)
		if err != nil {
			return fmt.Errorf("inserting order item: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PostgresOrderRepo) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, reference, payer_email, total, status, payment_id, preference_id, created_at
		 FROM orders WHERE reference = $1`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	var items []orderItemRow
	err = r.db.SelectContext(ctx, &items,
		`SELECT order_id, product_id, product_name, quantity, unit_price, subtotal
		 FROM order_items WHERE order_id = $1`, row.ID)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:         row.ID,
		Reference:  row.Reference,
		PayerEmail: row.Payer,
		Total:      row.Total,
		Status:     domain.OrderStatus(row.Status),
		PaymentID:  row.PaymentID.String,
		PrefID:     row.PrefID.String,
		CreatedAt:  row.CreatedAt,
	}
	for _, it := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return order, nil
}

func (r *PostgresOrderRepo) SetPreferenceID(ctx context.Context, orderID, prefID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET preference_id = $1 WHERE id = $2`, prefID, orderID)
	return err
}

// ApplyTransition runs the state machine for one payment event inside a
// serializable transaction: read the order row under lock, evaluate the
// pure transition, write the new status and decrement ingredient stock
// for a paid transition. Serialization conflicts are retried a bounded
// number of times; the idempotency record upstream makes the losing
// duplicate a harmless no-op on redelivery.
func (r *PostgresOrderRepo) ApplyTransition(ctx context.Context, reference string, ev domain.PaymentEvent, paymentID string) (domain.TransitionResult, error) {
	var res domain.TransitionResult
	var err error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		res, err = r.applyOnce(ctx, reference, ev, paymentID)
		if !isSerializationFailure(err) {
			return res, err
		}
		r.log.Warn().Str("reference", reference).Int("attempt", attempt+1).Msg("transition serialization conflict, retrying")
	}
	return res, err
}

func (r *PostgresOrderRepo) applyOnce(ctx context.Context, reference string, ev domain.PaymentEvent, paymentID string) (domain.TransitionResult, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	defer tx.Rollback()

	var row struct {
		ID        string         `db:"id"`
		Status    string         `db:"status"`
		PaymentID sql.NullString `db:"payment_id"`
	}
	err = tx.GetContext(ctx, &row,
		`SELECT id, status, payment_id FROM orders WHERE reference = $1 FOR UPDATE`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TransitionResult{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.TransitionResult{}, err
	}

	current := domain.OrderStatus(row.Status)
	same := paymentID != "" && row.PaymentID.Valid && row.PaymentID.String == paymentID
	out := domain.Transition(current, ev, same)

	switch out.Kind {
	case domain.OutcomeReject:
		return domain.TransitionResult{Status: current}, domain.ErrInvalidStateTransition
	case domain.OutcomeNoOp:
		return domain.TransitionResult{Status: current, Warn: out.Warn}, nil
	}

	newPaymentID := row.PaymentID.String
	if out.SetPaymentID {
		newPaymentID = paymentID
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, payment_id = $2 WHERE id = $3`,
		out.Next, newPaymentID, row.ID)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("updating order status: %w", err)
	}

	if out.DecrementStock {
		if err := r.decrementStock(ctx, tx, row.ID); err != nil {
			return domain.TransitionResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.TransitionResult{}, err
	}
	return domain.TransitionResult{Applied: true, Status: out.Next, Decremented: out.DecrementStock, Warn: out.Warn}, nil
}

// decrementStock charges the order's recipe draw against ingredient
// stock, inside the caller's transaction. A decrement is applied even
// when it drives the quantity negative; that anomaly is logged at error
// level rather than rejected, the check upstream at checkout time being
// the only guard.
func (r *PostgresOrderRepo) decrementStock(ctx context.Context, tx *sqlx.Tx, orderID string) error {
	var draws []struct {
		IngredientID string  `db:"ingredient_id"`
		Draw         float64 `db:"draw"`
	}
	err := tx.SelectContext(ctx, &draws,
		`SELECT rc.ingredient_id, SUM(rc.qty_per_unit * oi.quantity) AS draw
		 FROM order_items oi
		 JOIN recipes rc ON rc.product_id = oi.product_id
		 WHERE oi.order_id = $1
		 GROUP BY rc.ingredient_id`, orderID)
	if err != nil {
		return fmt.Errorf("loading recipe draw: %w", err)
	}

	for _, d := range draws {
		var remaining float64
		err = tx.GetContext(ctx, &remaining,
			`UPDATE ingredients SET quantity = quantity - $1 WHERE id = $2 RETURNING quantity`,
			d.Draw, d.IngredientID)
		if err != nil {
			return fmt.Errorf("decrementing ingredient %s: %w", d.IngredientID, err)
		}
		if remaining < 0 {
			r.log.Error().
				Str("order_id", orderID).
				Str("ingredient_id", d.IngredientID).
				Float64("draw", d.Draw).
				Float64("remaining", remaining).
				Msg("ingredient stock driven negative by paid order")
		}
	}
	return nil
}

// CancelStalePending sweeps orders that stayed PENDING past the
// payment window. The conditional UPDATE makes each cancellation atomic
// with respect to a concurrent paid transition on the same row.
func (r *PostgresOrderRepo) CancelStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	var refs []string
	err := r.db.SelectContext(ctx, &refs,
		`UPDATE orders SET status = $1
		 WHERE id IN (
		   SELECT id FROM orders
		   WHERE status = $2 AND created_at < NOW() - make_interval(secs => $3)
		   LIMIT $4
		 ) AND status = $2
		 RETURNING reference`,
		domain.StatusCancelled, domain.StatusPending, olderThan.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}
