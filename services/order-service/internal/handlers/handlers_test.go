package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakehouse-system/services/order-service/internal/domain"
	"bakehouse-system/services/order-service/internal/payments"
	"bakehouse-system/services/order-service/internal/stock"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	enqueued []payments.Notification
}

func (d *recordingDispatcher) Enqueue(n payments.Notification, _ string, _ []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqueued = append(d.enqueued, n)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookDispatchesNotifications(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewWebhookHandler(d, "", zerolog.Nop())

	body := []byte(`{"data":{"id":"pay-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()

	h.HandlePaymentWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.enqueued, 1)
	assert.Equal(t, "pay-1", d.enqueued[0].PaymentID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewWebhookHandler(d, "secret", zerolog.Nop())

	body := []byte(`{"data":{"id":"pay-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Signature", "ts=1,v1=deadbeef")
	rec := httptest.NewRecorder()

	h.HandlePaymentWebhook(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, d.enqueued, "no reconciliation on signature failure")
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewWebhookHandler(d, "secret", zerolog.Nop())

	body := []byte(`{"data":{"id":"pay-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Signature", "ts=1,v1="+sign("secret", body))
	rec := httptest.NewRecorder()

	h.HandlePaymentWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, d.enqueued, 1)
}

func TestWebhookUnrecognizedPayloadStillAcknowledged(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewWebhookHandler(d, "", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader([]byte(`{"hello":"world"}`)))
	rec := httptest.NewRecorder()

	h.HandlePaymentWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "no 4xx that would trigger redelivery")
	assert.Empty(t, d.enqueued)
}

// checkout fixtures

type memCatalog struct {
	recipes  map[string][]domain.RecipeLine
	products map[string]domain.Product
	stockMap map[string]float64
}

func (m *memCatalog) RecipeFor(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	return m.recipes[productID], nil
}

func (m *memCatalog) ProductsByID(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memCatalog) StockFor(_ context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range ids {
		out[id] = m.stockMap[id]
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func (m *memOrders) Create(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.Reference] = o
	return nil
}

func (m *memOrders) GetByReference(_ context.Context, ref string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[ref]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *memOrders) SetPreferenceID(_ context.Context, orderID, prefID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			o.PrefID = prefID
		}
	}
	return nil
}

func (m *memOrders) ApplyTransition(context.Context, string, domain.PaymentEvent, string) (domain.TransitionResult, error) {
	return domain.TransitionResult{}, nil
}

func (m *memOrders) CancelStalePending(context.Context, time.Duration, int) ([]string, error) {
	return nil, nil
}

type stubGateway struct {
	err error
}

func (s *stubGateway) CreatePreference(_ context.Context, o *domain.Order) (*payments.Preference, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payments.Preference{ID: "pref-1", RedirectURL: "https://pay.example.com/p/1"}, nil
}

func newCheckoutFixture(flour float64) (*CheckoutHandler, *memOrders, *stubGateway) {
	cat := &memCatalog{
		recipes: map[string][]domain.RecipeLine{
			"bread": {{ProductID: "bread", IngredientID: "flour", QtyPerUnit: 2}},
		},
		products: map[string]domain.Product{
			"bread": {ID: "bread", Name: "Sourdough Loaf", Price: 4.5},
		},
		stockMap: map[string]float64{"flour": flour},
	}
	orders := &memOrders{orders: map[string]*domain.Order{}}
	gw := &stubGateway{}
	h := NewCheckoutHandler(stock.NewValidator(cat, cat), cat, orders, gw, zerolog.Nop())
	return h, orders, gw
}

func doCheckout(t *testing.T, h *CheckoutHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	h.HandleCheckout(rec, req)
	return rec
}

func TestCheckoutHappyPath(t *testing.T) {
	h, orders, _ := newCheckoutFixture(10)

	rec := doCheckout(t, h, `{"items":[{"product_id":"bread","quantity":2}],"payer_email":"a@b.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data CheckoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pref-1", resp.Data.PreferenceID)
	assert.Equal(t, "https://pay.example.com/p/1", resp.Data.RedirectURL)
	require.NotEmpty(t, resp.Data.Reference)

	order, err := orders.GetByReference(context.Background(), resp.Data.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, 9.0, order.Total, "catalog price, not client price")
	assert.Equal(t, "pref-1", order.PrefID)
}

func TestCheckoutInsufficientStockNamesProduct(t *testing.T) {
	h, orders, _ := newCheckoutFixture(4)

	rec := doCheckout(t, h, `{"items":[{"product_id":"bread","quantity":6}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_stock", resp.Error)
	assert.Contains(t, resp.Message, "Sourdough Loaf")
	assert.Contains(t, resp.Message, "only 2 of 6")
	assert.Empty(t, orders.orders, "no order created on a rejected checkout")
}

func TestCheckoutGatewayFailure(t *testing.T) {
	h, _, gw := newCheckoutFixture(10)
	gw.err = domain.ErrGatewayUnavailable

	rec := doCheckout(t, h, `{"items":[{"product_id":"bread","quantity":1}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	h, _, _ := newCheckoutFixture(10)

	assert.Equal(t, http.StatusBadRequest, doCheckout(t, h, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, doCheckout(t, h, `{"items":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, doCheckout(t, h, `{"items":[{"product_id":"bread","quantity":0}]}`).Code)
}

func TestGetOrderByReference(t *testing.T) {
	h, orders, _ := newCheckoutFixture(10)
	_ = orders.Create(context.Background(), &domain.Order{
		ID: "ord-1", Reference: "abc-123", Status: domain.StatusPaid, Total: 9, PaymentID: "pay-1",
	})

	router := chi.NewRouter()
	router.Get("/orders/{reference}", h.HandleGetOrder)

	req := httptest.NewRequest(http.MethodGet, "/orders/abc-123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data OrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "paid", resp.Data.Status)
	assert.Equal(t, "pay-1", resp.Data.PaymentID)

	req = httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
