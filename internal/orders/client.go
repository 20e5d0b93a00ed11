// Package orders is the client of the remote order API that turns a cart into an order.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const ordersPath = "/api/orders"

// Item is one order line.
type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	GSTRate   decimal.Decimal `json:"gst"`
}

// Address is where the order is shipped to.
type Address struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city"    validate:"required"`
	State   string `json:"state"   validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

// Payload is the order document the order API accepts.
type Payload struct {
	Items              []Item          `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountedSubtotal decimal.Decimal `json:"discountedSubtotal"`
	GST                decimal.Decimal `json:"gst"`
	Shipping           decimal.Decimal `json:"shipping"`
	Total              decimal.Decimal `json:"total"`
	CouponCode         string          `json:"couponCode,omitempty"`
	ShippingAddress    Address         `json:"shippingAddress"`
	PaymentReference   string          `json:"paymentReference,omitempty"`
}

// Confirmation is the answer of the order API. Confirmed is true once payment was verified.
type Confirmation struct {
	OrderID   string `json:"orderId"`
	Confirmed bool   `json:"confirmed"`
}

// Client posts orders to the order API through a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Confirmation]
	logger  *slog.Logger
}

// NewClient creates a client of the order API at baseURL.
func NewClient(baseURL string, timeout time.Duration, cbCfg config.CircuitBreakerConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: resilience.NewCircuitBreaker[*Confirmation]("order-service-cb", cbCfg, isSuccessful, logger),
		logger:  logger.With("component", "orders_client"),
	}
}

// isSuccessful keeps rejected orders from tripping the breaker: only server and transport failures count.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, ErrOrderRejected) || errors.Is(err, context.Canceled)
}

// Submit posts the order with the caller's bearer token.
// Returns ErrOrderRejected on a 4xx answer and ErrOrderServiceUnavailable while the breaker is open.
func (c *Client) Submit(ctx context.Context, order Payload) (*Confirmation, error) {
	conf, err := c.breaker.Execute(func() (*Confirmation, error) {
		return c.post(ctx, order)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.WarnContext(ctx, "order service circuit is open", "state", c.breaker.State().String())
		return nil, fmt.Errorf("%w: %w", ErrOrderServiceUnavailable, err)
	}
	return conf, err
}

func (c *Client) post(ctx context.Context, order Payload) (*Confirmation, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := identity.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call order service: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		var conf Confirmation
		if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&conf); err != nil {
			return nil, fmt.Errorf("failed to decode order confirmation: %w", err)
		}
		return &conf, nil
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrOrderRejected, res.StatusCode, readSnippet(res.Body))
	default:
		return nil, fmt.Errorf("%w: status=%d body=%s", errServerFailure, res.StatusCode, readSnippet(res.Body))
	}
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
