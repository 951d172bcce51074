package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bakehouse-system/services/order-service/internal/domain"
)

// maxRawExcerpt bounds what we persist of each webhook body.
const maxRawExcerpt = 5000

// PaymentFetcher is the slice of the gateway client the reconciler needs.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*PaymentDetail, error)
}

type EventPublisher interface {
	Publish(topic string, message map[string]interface{})
}

// Reconciler applies provider payment notifications to the order
// ledger, idempotently. All failures are absorbed and recorded on the
// webhook's idempotency record; there is no caller left to surface them
// to once the webhook has been acknowledged.
type Reconciler struct {
	gateway PaymentFetcher
	orders  domain.OrderRepository
	weblog  domain.WebhookLogRepository
	events  EventPublisher
	log     zerolog.Logger
	timeout time.Duration

	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	paymentID string
	requestID string
	raw       []byte
}

func NewReconciler(
	gateway PaymentFetcher,
	orders domain.OrderRepository,
	weblog domain.WebhookLogRepository,
	events EventPublisher,
	log zerolog.Logger,
	gatewayTimeout time.Duration,
) *Reconciler {
	if gatewayTimeout == 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &Reconciler{
		gateway: gateway,
		orders:  orders,
		weblog:  weblog,
		events:  events,
		log:     log,
		timeout: gatewayTimeout,
		jobs:    make(chan job, 64),
	}
}

// Start launches the worker pool that drains enqueued notifications.
func (r *Reconciler) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for j := range r.jobs {
				r.Reconcile(context.Background(), j.paymentID, j.requestID, j.raw)
			}
		}()
	}
}

// Enqueue hands a notification to the pool without ever blocking the
// inbound webhook request. When the buffer is full the job runs on its
// own goroutine instead.
func (r *Reconciler) Enqueue(n Notification, requestID string, raw []byte) {
	j := job{paymentID: n.PaymentID, requestID: requestID, raw: raw}
	select {
	case r.jobs <- j:
	default:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Reconcile(context.Background(), j.paymentID, j.requestID, j.raw)
		}()
	}
}

// Close stops accepting work and waits for in-flight reconciliations.
func (r *Reconciler) Close() {
	close(r.jobs)
	r.wg.Wait()
}

// Reconcile fetches the payment detail for one provider payment id and
// applies the corresponding order transition, end to end. Safe to call
// concurrently for the same payment id: the idempotency record is the
// fast path, the atomic order transition is the real guard against a
// second decrement.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID, requestID string, raw []byte) {
	log := r.log.With().Str("payment_id", paymentID).Str("request_id", requestID).Logger()

	rec, err := r.weblog.Get(ctx, paymentID)
	if err != nil {
		log.Error().Err(err).Msg("loading idempotency record")
		return
	}
	if rec != nil && rec.Processed {
		log.Debug().Msg("payment already processed, skipping")
		return
	}
	if rec == nil {
		rec = &domain.WebhookEvent{
			PaymentID:  paymentID,
			Topic:      deriveTopic(raw, paymentID),
			ReceivedAt: time.Now().UTC(),
		}
	}
	rec.RequestID = requestID
	rec.RawExcerpt = truncate(raw, maxRawExcerpt)

	// The record must be durable before the transition commits, so a
	// crash in between cannot lose the fact this id was seen.
	if err := r.weblog.Save(ctx, rec); err != nil {
		log.Error().Err(err).Msg("persisting idempotency record")
		return
	}

	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	detail, err := r.gateway.GetPayment(fctx, paymentID)
	cancel()
	if err != nil {
		r.recordFailure(ctx, log, rec, err)
		return
	}

	rec.PaymentStatus = detail.Status
	if detail.Reference == "" {
		r.recordFailure(ctx, log, rec, domain.ErrExternalRefMissing)
		return
	}
	rec.Reference = detail.Reference

	ev, ok := eventForStatus(detail.Status)
	if !ok {
		log.Info().Str("status", detail.Status).Msg("unhandled payment status, nothing to apply")
		r.recordFailure(ctx, log, rec, errors.New("unhandled payment status "+detail.Status))
		return
	}

	res, err := r.orders.ApplyTransition(ctx, detail.Reference, ev, paymentID)
	switch {
	case errors.Is(err, domain.ErrInvalidStateTransition):
		// Recorded without processed=true so a manual correction can
		// be followed by a redelivery.
		log.Warn().Str("reference", detail.Reference).Msg("invalid state transition")
		r.recordFailure(ctx, log, rec, err)
		return
	case errors.Is(err, domain.ErrOrderNotFound):
		log.Error().Str("reference", detail.Reference).Msg("no local order for external reference")
		r.recordFailure(ctx, log, rec, err)
		return
	case err != nil:
		r.recordFailure(ctx, log, rec, err)
		return
	}

	if res.Warn != "" {
		log.Warn().Str("reference", detail.Reference).Msg(res.Warn)
	}

	now := time.Now().UTC()
	rec.Processed = true
	rec.ErrorDetail = ""
	rec.ProcessedAt = &now
	if err := r.weblog.Save(ctx, rec); err != nil {
		log.Error().Err(err).Msg("marking idempotency record processed")
		return
	}

	if res.Applied && r.events != nil {
		r.events.Publish("order-"+string(res.Status), map[string]interface{}{
			"reference":  detail.Reference,
			"payment_id": paymentID,
			"status":     string(res.Status),
		})
	}
	log.Info().
		Str("reference", detail.Reference).
		Str("status", string(res.Status)).
		Bool("applied", res.Applied).
		Bool("stock_decremented", res.Decremented).
		Msg("payment reconciled")
}

func (r *Reconciler) recordFailure(ctx context.Context, log zerolog.Logger, rec *domain.WebhookEvent, cause error) {
	now := time.Now().UTC()
	rec.ErrorDetail = cause.Error()
	rec.ProcessedAt = &now
	if err := r.weblog.Save(ctx, rec); err != nil {
		log.Error().Err(err).Msg("persisting failure on idempotency record")
		return
	}
	log.Warn().Str("cause", cause.Error()).Msg("reconciliation recorded as failed")
}

// eventForStatus maps the provider's payment status onto the order
// state machine. Unknown statuses are not an event at all.
func eventForStatus(status string) (domain.PaymentEvent, bool) {
	switch status {
	case "approved":
		return domain.EventMarkPaid, true
	case "rejected", "cancelled":
		return domain.EventMarkFailed, true
	case "pending", "in_process", "in_mediation":
		return domain.EventMarkInProcess, true
	default:
		return "", false
	}
}

// deriveTopic recovers the notification topic for this payment id from
// the raw body, defaulting to "payment" when the body does not parse.
func deriveTopic(raw []byte, paymentID string) string {
	ns, err := ParseNotifications(raw)
	if err != nil {
		return "payment"
	}
	for _, n := range ns {
		if n.PaymentID == paymentID {
			return n.Topic
		}
	}
	return "payment"
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
