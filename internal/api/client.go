// Package api is the typed client for the external payment API consumed by
// the embedded checkout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gatepay/embedded-checkout/internal/common"
	"github.com/gatepay/embedded-checkout/internal/resilience"
)

// Header names presented on every request. The checkout token is the
// short-lived, order-scoped credential minted server side; no long-lived
// secret ever accompanies these calls.
const (
	HeaderAPIKey        = "X-Api-Key"
	HeaderCheckoutToken = "X-Checkout-Token"
)

// Client talks to the payment API. Zero-value fields fall back to sane
// defaults except BaseURL and Key, which callers must provide.
type Client struct {
	BaseURL       string
	Key           string
	CheckoutToken string
	HTTP          *resilience.HTTPClient
	Logger        zerolog.Logger
}

// NewHTTPClient returns an instrumented HTTP client suitable for payment API
// calls. Polling callers keep MaxAttempts at 1: a failed status check
// terminates the poll loop rather than retrying the tick.
func NewHTTPClient(timeout time.Duration) *resilience.HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &resilience.HTTPClient{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxAttempts: 1,
	}
}

// GetOrder fetches the read-only order view.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderID), nil, &order)
	return order, err
}

// CreatePayment submits a payment intent for the order.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	var payment Payment
	err := c.do(ctx, http.MethodPost, "/api/v1/payments", req, &payment)
	return payment, err
}

// GetPayment fetches the current payment record. Used by the poll loop.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	var payment Payment
	err := c.do(ctx, http.MethodGet, "/api/v1/payments/"+url.PathEscape(paymentID), nil, &payment)
	return payment, err
}

// RetryWebhook asks the API to redeliver a webhook.
func (c *Client) RetryWebhook(ctx context.Context, webhookID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/webhooks/"+url.PathEscape(webhookID)+"/retry", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return common.ConfigurationError("api: base url is required")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderAPIKey, c.Key)
	if tok := strings.TrimSpace(c.CheckoutToken); tok != "" {
		req.Header.Set(HeaderCheckoutToken, tok)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	resp, err := httpClient.Do(ctx, req)
	if err != nil {
		return common.NetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.NetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope apiErrorBody
		description := ""
		if json.Unmarshal(data, &envelope) == nil {
			description = strings.TrimSpace(envelope.Error.Description)
		}
		c.Logger.Debug().Int("status", resp.StatusCode).Str("path", path).Str("description", description).Msg("api error response")
		return common.APIError(description, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return common.NetworkError(fmt.Errorf("api: decode response: %w", err))
	}
	return nil
}
