package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/orders"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// CartAccessor runs fn against the cart of the principal with exclusive access to it.
type CartAccessor interface {
	WithCart(ctx context.Context, who identity.Identity, fn func(*cart.Store) error) error
}

// OrderSubmitter hands an order to the order API.
type OrderSubmitter interface {
	Submit(ctx context.Context, order orders.Payload) (*orders.Confirmation, error)
}

// QuoteRequest carries the per-order price inputs.
type QuoteRequest struct {
	CouponCode string                     `json:"couponCode"`
	Discount   decimal.Decimal            `json:"discount"`
	GSTRates   map[string]decimal.Decimal `json:"gstRates"`
}

// PlaceOrderRequest is a quote plus where to ship and the payment that covers it.
type PlaceOrderRequest struct {
	QuoteRequest
	ShippingAddress  orders.Address `json:"shippingAddress"`
	PaymentReference string         `json:"paymentReference"`
}

// OrderResult is the outcome of PlaceOrder. The cart was cleared when Confirmed is true.
type OrderResult struct {
	OrderID   string  `json:"orderId"`
	Confirmed bool    `json:"confirmed"`
	Summary   Summary `json:"summary"`
}

// Service prices carts and places orders.
type Service struct {
	carts     CartAccessor
	submitter OrderSubmitter
	publisher messaging.Publisher
	pricing   Pricing
	validate  *validator.Validate
	now       func() time.Time
	logger    *slog.Logger
	placed    metric.Int64Counter
}

func NewService(carts CartAccessor, submitter OrderSubmitter, publisher messaging.Publisher, pricing Pricing, logger *slog.Logger) *Service {
	meter := otel.Meter("cart-service")
	placed, err := meter.Int64Counter("orders_placed_total", metric.WithDescription("Total number of confirmed orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_placed_total counter: %v", err))
	}
	return &Service{
		carts:     carts,
		submitter: submitter,
		publisher: publisher,
		pricing:   pricing,
		validate:  validator.New(),
		now:       time.Now,
		logger:    logger.With("component", "checkout"),
		placed:    placed,
	}
}

func (s *Service) options(req QuoteRequest) Options {
	return Options{
		Pricing:    s.pricing,
		CouponCode: req.CouponCode,
		Discount:   req.Discount,
		GSTRates:   req.GSTRates,
	}
}

// Quote prices the current cart without touching it.
func (s *Service) Quote(ctx context.Context, who identity.Identity, req QuoteRequest) (*Summary, error) {
	var sum Summary
	err := s.carts.WithCart(ctx, who, func(st *cart.Store) error {
		sum = Summarize(st.Items(), s.options(req))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// PlaceOrder submits the cart as an order and clears it once the order API confirms payment.
// The cart is locked for the duration of the submission so that nothing is added to an order in flight.
func (s *Service) PlaceOrder(ctx context.Context, who identity.Identity, req PlaceOrderRequest) (*OrderResult, error) {
	if !who.Resolving && who.IsGuest() {
		return nil, ErrLoginRequired
	}
	if err := s.validate.Struct(req.ShippingAddress); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteAddress, err)
	}

	var result *OrderResult
	err := s.carts.WithCart(ctx, who, func(st *cart.Store) error {
		items := st.Items()
		if len(items) == 0 {
			return ErrEmptyCart
		}
		sum := Summarize(items, s.options(req.QuoteRequest))

		conf, err := s.submitter.Submit(ctx, toPayload(sum, req))
		if err != nil {
			return fmt.Errorf("failed to submit order: %w", err)
		}
		result = &OrderResult{OrderID: conf.OrderID, Confirmed: conf.Confirmed, Summary: sum}
		if conf.Confirmed {
			st.Clear()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Confirmed {
		s.logger.InfoContext(ctx, "order submitted but not confirmed, cart kept", "order_id", result.OrderID)
		return result, nil
	}
	s.placed.Add(ctx, 1)
	s.logger.InfoContext(ctx, "order placed", "order_id", result.OrderID, "total", result.Summary.Total.String())

	event := events.CartCheckedOutEvent{
		EventID:     uuid.New(),
		OrderID:     result.OrderID,
		PrincipalID: who.PrincipalID,
		Items:       len(result.Summary.Lines),
		Units:       result.Summary.Units,
		Total:       result.Summary.Total.StringFixed(moneyPlaces),
		CheckedOut:  s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CartCheckedOutEvent", "order_id", result.OrderID, "error", err)
	}
	return result, nil
}

func toPayload(sum Summary, req PlaceOrderRequest) orders.Payload {
	items := make([]orders.Item, len(sum.Lines))
	for i, line := range sum.Lines {
		items[i] = orders.Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			GSTRate:   line.GSTRate,
		}
	}
	return orders.Payload{
		Items:              items,
		Subtotal:           sum.Subtotal,
		Discount:           sum.Discount,
		DiscountedSubtotal: sum.DiscountedSubtotal,
		GST:                sum.GST,
		Shipping:           sum.Shipping,
		Total:              sum.Total,
		CouponCode:         sum.CouponCode,
		ShippingAddress:    req.ShippingAddress,
		PaymentReference:   req.PaymentReference,
	}
}
