// order-service/internal/handlers/checkout_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bakehouse-system/services/order-service/internal/domain"
	"bakehouse-system/services/order-service/internal/payments"
	"bakehouse-system/services/order-service/internal/stock"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// PreferenceCreator is the slice of the gateway client the checkout
// path needs.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, order *domain.Order) (*payments.Preference, error)
}

type CheckoutHandler struct {
	validator *stock.Validator
	catalog   domain.RecipeRepository
	orders    domain.OrderRepository
	gateway   PreferenceCreator
	log       zerolog.Logger
}

func NewCheckoutHandler(
	validator *stock.Validator,
	catalog domain.RecipeRepository,
	orders domain.OrderRepository,
	gateway PreferenceCreator,
	log zerolog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		validator: validator,
		catalog:   catalog,
		orders:    orders,
		gateway:   gateway,
		log:       log,
	}
}

type CheckoutRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	PayerEmail string `json:"payer_email"`
}

type CheckoutResponse struct {
	Reference    string `json:"reference"`
	PreferenceID string `json:"preference_id"`
	RedirectURL  string `json:"redirect_url"`
}

// HandleCheckout validates ingredient availability, creates a PENDING
// order and registers a provider preference, returning the redirect
// URL. A failed stock check is a 422 naming each product and its
// maximum fulfillable quantity.
func (h *CheckoutHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields", "at least one item is required")
		return
	}

	items := make([]stock.ItemRequest, 0, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item", "each item needs a product_id and a positive quantity")
			return
		}
		items = append(items, stock.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		ids = append(ids, it.ProductID)
	}

	check, err := h.validator.Check(r.Context(), items)
	if err != nil {
		h.log.Error().Err(err).Msg("stock check failed")
		writeError(w, http.StatusInternalServerError, "stock_check_failed", "could not validate stock")
		return
	}
	if !check.Valid {
		serr := check.Shortfalls()
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "insufficient_stock",
			Message: serr.Error(),
			Detail:  check.Items,
		})
		return
	}

	products, err := h.catalog.ProductsByID(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "catalog_error", "could not load products")
		return
	}

	order := &domain.Order{
		ID:         uuid.New().String(),
		Reference:  uuid.New().String(),
		PayerEmail: req.PayerEmail,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	for _, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_product", "no such product: "+it.ProductID)
			return
		}
		subtotal := p.Price * float64(it.Quantity)
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			Subtotal:    subtotal,
		})
		order.Total += subtotal
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		h.log.Error().Err(err).Msg("creating order")
		writeError(w, http.StatusInternalServerError, "database_error", "could not create order")
		return
	}

	pref, err := h.gateway.CreatePreference(r.Context(), order)
	if err != nil {
		h.log.Error().Err(err).Str("reference", order.Reference).Msg("creating payment preference")
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			writeError(w, http.StatusBadGateway, "gateway_unavailable", "payment provider unreachable")
			return
		}
		writeError(w, http.StatusBadGateway, "gateway_error", "payment provider rejected the checkout")
		return
	}

	if err := h.orders.SetPreferenceID(r.Context(), order.ID, pref.ID); err != nil {
		h.log.Error().Err(err).Str("order_id", order.ID).Msg("persisting preference id")
	}

	h.log.Info().Str("reference", order.Reference).Float64("total", order.Total).Msg("checkout created")
	writeJSON(w, http.StatusCreated, SuccessResponse{
		Success: true,
		Data: CheckoutResponse{
			Reference:    order.Reference,
			PreferenceID: pref.ID,
			RedirectURL:  pref.RedirectURL,
		},
	})
}

type OrderResponse struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	PaymentID string    `json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleGetOrder exposes order status by external reference, the same
// identifier the payment provider's back URLs carry.
func (h *CheckoutHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	order, err := h.orders.GetByReference(r.Context(), reference)
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database_error", "could not load order")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data: OrderResponse{
			Reference: order.Reference,
			Status:    string(order.Status),
			Total:     order.Total,
			PaymentID: order.PaymentID,
			CreatedAt: order.CreatedAt,
		},
	})
}
