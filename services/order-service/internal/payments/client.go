package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bakehouse-system/services/order-service/internal/domain"
)

// PaymentDetail is the provider's view of one payment.
type PaymentDetail struct {
	ID        string
	Status    string
	Reference string
}

// Preference is the provider-side checkout session.
type Preference struct {
	ID          string
	RedirectURL string
}

type ClientConfig struct {
	BaseURL         string
	AccessToken     string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	Currency        string
	Timeout         time.Duration
}

// Client talks to the external payment provider. Treated as unreliable:
// every call carries a bounded timeout, network faults surface as
// ErrGatewayUnavailable.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceRequest struct {
	Items []preferenceItem `json:"items"`
	Payer *struct {
		Email string `json:"email"`
	} `json:"payer,omitempty"`
	BackURLs struct {
		Success string `json:"success"`
		Failure string `json:"failure"`
		Pending string `json:"pending"`
	} `json:"back_urls"`
	NotificationURL   string `json:"notification_url"`
	ExternalReference string `json:"external_reference"`
	AutoReturn        string `json:"auto_return,omitempty"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference registers a checkout session for the order and
// returns the redirect URL. The provider rejects auto_return when the
// success URL is not secure transport; that one rejection is retried
// once with the flag removed before surfacing a hard failure.
func (c *Client) CreatePreference(ctx context.Context, order *domain.Order) (*Preference, error) {
	req := c.buildPreferenceRequest(order)
	req.AutoReturn = "approved"

	pref, retryable, err := c.postPreference(ctx, req)
	if err == nil {
		return pref, nil
	}
	if !retryable {
		return nil, err
	}

	req.AutoReturn = ""
	pref, _, err = c.postPreference(ctx, req)
	if err != nil {
		return nil, err
	}
	return pref, nil
}

func (c *Client) buildPreferenceRequest(order *domain.Order) preferenceRequest {
	var req preferenceRequest
	for _, it := range order.Items {
		req.Items = append(req.Items, preferenceItem{
			Title:      it.ProductName,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: c.cfg.Currency,
		})
	}
	if order.PayerEmail != "" {
		req.Payer = &struct {
			Email string `json:"email"`
		}{Email: order.PayerEmail}
	}
	req.BackURLs.Success = c.cfg.SuccessURL
	req.BackURLs.Failure = c.cfg.FailureURL
	req.BackURLs.Pending = c.cfg.PendingURL
	req.NotificationURL = c.cfg.NotificationURL
	req.ExternalReference = order.Reference
	return req
}

// postPreference returns retryable=true only for the auto_return
// rejection, the one provider error worth a second attempt.
func (c *Client) postPreference(ctx context.Context, pr preferenceRequest) (*Preference, bool, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return nil, false, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if pr.AutoReturn != "" && strings.Contains(strings.ToLower(string(respBody)), "auto_return") {
			return nil, true, fmt.Errorf("provider rejected auto_return: %s", respBody)
		}
		return nil, false, fmt.Errorf("preference creation failed with status %d: %s", resp.StatusCode, respBody)
	}

	var pref preferenceResponse
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, false, fmt.Errorf("decoding preference response: %w", err)
	}
	return &Preference{ID: pref.ID, RedirectURL: pref.InitPoint}, false, nil
}

type paymentResponse struct {
	ID                json.RawMessage `json:"id"`
	Status            string          `json:"status"`
	ExternalReference string          `json:"external_reference"`
	AdditionalInfo    *struct {
		ExternalReference string `json:"external_reference"`
	} `json:"additional_info"`
}

// GetPayment fetches the provider's detail for one payment id.
// Returns ErrPaymentNotFound when the provider has no such payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrPaymentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment fetch failed with status %d", resp.StatusCode)
	}

	var pay paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pay); err != nil {
		return nil, fmt.Errorf("decoding payment response: %w", err)
	}

	ref := pay.ExternalReference
	if ref == "" && pay.AdditionalInfo != nil {
		ref = pay.AdditionalInfo.ExternalReference
	}
	id := decodeID(pay.ID)
	if id == "" {
		id = paymentID
	}
	return &PaymentDetail{ID: id, Status: pay.Status, Reference: ref}, nil
}
