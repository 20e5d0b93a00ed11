package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/orders"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCartService is a mock implementation of the CartService interface
type mockCartService struct {
	cart  *service.CartDto
	error error

	who       identity.Identity
	candidate cart.Candidate
	product   cart.Product
	id        string
	quantity  int
}

func (m *mockCartService) result() (*service.CartDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.cart, nil
}

func (m *mockCartService) Snapshot(_ context.Context, who identity.Identity) (*service.CartDto, error) {
	m.who = who
	return m.result()
}

func (m *mockCartService) AddItem(_ context.Context, who identity.Identity, c cart.Candidate) (*service.CartDto, error) {
	m.who, m.candidate = who, c
	return m.result()
}

func (m *mockCartService) AddSingleUnit(_ context.Context, who identity.Identity, p cart.Product) (*service.CartDto, error) {
	m.who, m.product = who, p
	return m.result()
}

func (m *mockCartService) RemoveItem(_ context.Context, who identity.Identity, id string) (*service.CartDto, error) {
	m.who, m.id = who, id
	return m.result()
}

func (m *mockCartService) RemoveSingleUnit(_ context.Context, who identity.Identity, id string) (*service.CartDto, error) {
	m.who, m.id = who, id
	return m.result()
}

func (m *mockCartService) UpdateQuantity(_ context.Context, who identity.Identity, id string, quantity int) (*service.CartDto, error) {
	m.who, m.id, m.quantity = who, id, quantity
	return m.result()
}

func (m *mockCartService) Clear(_ context.Context, who identity.Identity) (*service.CartDto, error) {
	m.who = who
	return m.result()
}

type mockCheckoutService struct {
	summary *checkout.Summary
	result  *checkout.OrderResult
	error   error
	quote   checkout.QuoteRequest
	order   checkout.PlaceOrderRequest
}

func (m *mockCheckoutService) Quote(_ context.Context, _ identity.Identity, req checkout.QuoteRequest) (*checkout.Summary, error) {
	m.quote = req
	if m.error != nil {
		return nil, m.error
	}
	return m.summary, nil
}

func (m *mockCheckoutService) PlaceOrder(_ context.Context, _ identity.Identity, req checkout.PlaceOrderRequest) (*checkout.OrderResult, error) {
	m.order = req
	if m.error != nil {
		return nil, m.error
	}
	return m.result, nil
}

var discard = slog.New(slog.DiscardHandler)

var oneItemCart = &service.CartDto{
	Principal:      "user:u1",
	Items:          []service.ItemDto{{Identity: "a", Quantity: 2, UnitPrice: decimal.NewFromInt(100), Subtotal: decimal.NewFromInt(200)}},
	DistinctCount:  1,
	TotalUnitCount: 2,
	TotalValue:     decimal.NewFromInt(200),
}

const oneItemCartJSON = `{
	"principal": "user:u1",
	"items": [{"identity": "a", "quantity": 2, "unitPrice": "100", "subtotal": "200"}],
	"distinctCount": 1,
	"totalUnitCount": 2,
	"totalValue": "200"
}`

func newMux(carts service.CartService, co CheckoutService) *chi.Mux {
	mux := chi.NewRouter()
	NewHandler(carts, co, identity.Middleware(nil, discard), discard).RegisterRoutes(mux)
	return mux
}

func serve(mux http.Handler, method, target, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(identity.XUserID, user)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHandler_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
		check      func(t *testing.T, m *mockCartService)
	}{
		{
			name: "snapshot", method: http.MethodGet, target: "/api/v1/cart",
			wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, identity.User("u1"), m.who)
			},
		},
		{
			name: "add item with legacy fields", method: http.MethodPost, target: "/api/v1/cart/items",
			body:       `{"_id": "a", "quantity": 2, "price": 100.5, "stock": 7, "name": "Mango", "attributes": {"color": "red"}}`,
			wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, "a", m.candidate.AltID)
				assert.Equal(t, 2, m.candidate.Quantity)
				price, err := cart.ParsePrice(m.candidate.UnitPrice)
				require.NoError(t, err)
				assert.Equal(t, "100.5", price.String())
				require.NotNil(t, m.candidate.StockLimit)
				assert.Equal(t, 7, *m.candidate.StockLimit)
				assert.Equal(t, "Mango", m.candidate.Name)
				assert.Equal(t, map[string]any{"color": "red"}, m.candidate.Attributes)
			},
		},
		{
			name: "update quantity", method: http.MethodPut, target: "/api/v1/cart/items/a",
			body: `{"quantity": 5}`, wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, "a", m.id)
				assert.Equal(t, 5, m.quantity)
			},
		},
		{
			name: "update quantity to zero", method: http.MethodPut, target: "/api/v1/cart/items/a",
			body: `{"quantity": 0}`, wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, 0, m.quantity)
			},
		},
		{
			name: "update quantity missing", method: http.MethodPut, target: "/api/v1/cart/items/a",
			body: `{}`, wantStatus: http.StatusBadRequest,
			wantBody: `{"validation_errors": {"Quantity": "failed on rule: required"}}`,
		},
		{
			name: "remove item", method: http.MethodDelete, target: "/api/v1/cart/items/a",
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, "a", m.id)
			},
		},
		{
			name: "increment", method: http.MethodPost, target: "/api/v1/cart/items/p9/increment",
			body: `{"price": "10", "name": "Apple"}`, wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, "p9", m.product.ID)
				assert.Equal(t, "10", m.product.Price)
				assert.Equal(t, "Apple", m.product.Name)
			},
		},
		{
			name: "decrement", method: http.MethodPost, target: "/api/v1/cart/items/a/decrement",
			wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
			check: func(t *testing.T, m *mockCartService) {
				assert.Equal(t, "a", m.id)
			},
		},
		{
			name: "clear", method: http.MethodDelete, target: "/api/v1/cart",
			wantStatus: http.StatusOK, wantBody: oneItemCartJSON,
		},
		{
			name: "malformed body", method: http.MethodPost, target: "/api/v1/cart/items",
			body: `{"id":`, wantStatus: http.StatusBadRequest, wantBody: `{"error": "Invalid request body"}`,
		},
		{
			name: "empty body", method: http.MethodPost, target: "/api/v1/cart/items",
			wantStatus: http.StatusBadRequest, wantBody: `{"error": "Invalid request body"}`,
		},
		{
			name: "health", method: http.MethodGet, target: "/healthz",
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// given
			carts := &mockCartService{cart: oneItemCart}
			mux := newMux(carts, &mockCheckoutService{})

			// when
			rr := serve(mux, tc.method, tc.target, tc.body, "u1")

			// then
			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rr.Body.String())
			}
			if tc.check != nil {
				tc.check(t, carts)
			}
		})
	}
}

func TestHandler_GuestWithoutHeader(t *testing.T) {
	carts := &mockCartService{cart: oneItemCart}
	mux := newMux(carts, &mockCheckoutService{})

	rr := serve(mux, http.MethodGet, "/api/v1/cart", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, identity.Guest, carts.who)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "stock limit",
			err:        &cart.StockLimitError{Identity: "a", Limit: 3},
			wantStatus: http.StatusConflict,
			wantBody:   `{"error": "only 3 items of a available in stock", "limit": 3}`,
		},
		{name: "invalid price", err: cart.ErrInvalidPrice, wantStatus: http.StatusBadRequest, wantBody: `{"error": "invalid price"}`},
		{name: "wrapped invalid price", err: fmt.Errorf("%w: bad", cart.ErrInvalidPrice), wantStatus: http.StatusBadRequest},
		{name: "invalid identity", err: cart.ErrInvalidIdentity, wantStatus: http.StatusBadRequest},
		{name: "invalid quantity", err: cart.ErrInvalidQuantity, wantStatus: http.StatusBadRequest},
		{name: "not found", err: cart.ErrItemNotFound, wantStatus: http.StatusNotFound, wantBody: `{"error": "item not found in cart"}`},
		{name: "resolving", err: service.ErrIdentityResolving, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantBody: `{"error": "Internal Server Error"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// given
			mux := newMux(&mockCartService{error: tc.err}, &mockCheckoutService{})

			// when
			rr := serve(mux, http.MethodPost, "/api/v1/cart/items", `{"id": "a", "unitPrice": 1}`, "u1")

			// then
			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rr.Body.String())
			}
		})
	}
}

func TestHandler_Quote(t *testing.T) {
	// given
	co := &mockCheckoutService{summary: &checkout.Summary{Total: decimal.RequireFromString("316.5")}}
	mux := newMux(&mockCartService{}, co)

	// when
	rr := serve(mux, http.MethodPost, "/api/v1/checkout/quote", `{"couponCode": "SAVE", "discount": "50", "gstRates": {"a": 5}}`, "u1")

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":"316.5"`)
	assert.Equal(t, "SAVE", co.quote.CouponCode)
	assert.Equal(t, "50", co.quote.Discount.String())
	assert.Equal(t, "5", co.quote.GSTRates["a"].String())
}

func TestHandler_QuoteWithoutBody(t *testing.T) {
	co := &mockCheckoutService{summary: &checkout.Summary{}}
	mux := newMux(&mockCartService{}, co)

	rr := serve(mux, http.MethodPost, "/api/v1/checkout/quote", "", "u1")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_PlaceOrder(t *testing.T) {
	body := `{"paymentReference": "pay_1", "shippingAddress": {"address": "1 Main St", "city": "Pune", "state": "MH", "pincode": "411001"}}`

	tests := []struct {
		name       string
		result     *checkout.OrderResult
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "confirmed",
			result:     &checkout.OrderResult{OrderID: "ord-1", Confirmed: true},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "awaiting payment",
			result:     &checkout.OrderResult{OrderID: "ord-1"},
			wantStatus: http.StatusAccepted,
		},
		{name: "guest", err: checkout.ErrLoginRequired, wantStatus: http.StatusUnauthorized},
		{name: "empty cart", err: checkout.ErrEmptyCart, wantStatus: http.StatusBadRequest, wantBody: `{"error": "cart is empty"}`},
		{name: "rejected", err: fmt.Errorf("failed to submit order: %w", orders.ErrOrderRejected), wantStatus: http.StatusUnprocessableEntity},
		{name: "unavailable", err: orders.ErrOrderServiceUnavailable, wantStatus: http.StatusServiceUnavailable},
		{
			name:       "incomplete address without details",
			err:        checkout.ErrIncompleteAddress,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error": "shipping address is incomplete"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// given
			co := &mockCheckoutService{result: tc.result, error: tc.err}
			mux := newMux(&mockCartService{}, co)

			// when
			rr := serve(mux, http.MethodPost, "/api/v1/checkout", body, "u1")

			// then
			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rr.Body.String())
			}
			assert.Equal(t, "pay_1", co.order.PaymentReference)
			assert.Equal(t, "411001", co.order.ShippingAddress.Pincode)
		})
	}
}

type address struct {
	City string `validate:"required"`
}

func TestHandler_PlaceOrder_ValidationErrors(t *testing.T) {
	// given
	verr := validator.New().Struct(address{})
	co := &mockCheckoutService{error: fmt.Errorf("%w: %w", checkout.ErrIncompleteAddress, verr)}
	mux := newMux(&mockCartService{}, co)

	// when
	rr := serve(mux, http.MethodPost, "/api/v1/checkout", `{}`, "u1")

	// then
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"validation_errors": {"City": "failed on rule: required"}}`, rr.Body.String())
}
