// Package rest provides HTTP handlers for the cart and checkout.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/orders"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// CheckoutService prices carts and places orders.
type CheckoutService interface {
	Quote(ctx context.Context, who identity.Identity, req checkout.QuoteRequest) (*checkout.Summary, error)
	PlaceOrder(ctx context.Context, who identity.Identity, req checkout.PlaceOrderRequest) (*checkout.OrderResult, error)
}

type Handler struct {
	carts    service.CartService
	checkout CheckoutService
	identify func(http.Handler) http.Handler
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the cart API. identify resolves the principal of every cart and checkout request.
func NewHandler(carts service.CartService, checkout CheckoutService, identify func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkout,
		identify: identify,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the cart service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(h.identify)
		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Get("/", h.Snapshot)
			r.Delete("/", h.Clear)
			r.Post("/items", h.AddItem)

			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", h.UpdateQuantity)
				r.Delete("/", h.RemoveItem)
				r.Post("/increment", h.Increment)
				r.Post("/decrement", h.Decrement)
			})
		})
		r.Route("/api/v1/checkout", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Post("/quote", h.Quote)
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

// AddItemRequest is a product to merge into the cart. "id" and "_id" are interchangeable, as are
// "unitPrice"/"price" and "stockLimit"/"stock".
type AddItemRequest struct {
	ID         string         `json:"id"`
	AltID      string         `json:"_id"`
	Quantity   int            `json:"quantity"`
	UnitPrice  any            `json:"unitPrice"`
	Price      any            `json:"price"`
	StockLimit *int           `json:"stockLimit"`
	Stock      *int           `json:"stock"`
	Name       string         `json:"name"`
	Image      string         `json:"image"`
	Attributes map[string]any `json:"attributes"`
}

func (req AddItemRequest) toCandidate() cart.Candidate {
	c := cart.Candidate{
		ID:         req.ID,
		AltID:      req.AltID,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		StockLimit: req.StockLimit,
		Name:       req.Name,
		Image:      req.Image,
		Attributes: req.Attributes,
	}
	if c.UnitPrice == nil {
		c.UnitPrice = req.Price
	}
	if c.StockLimit == nil {
		c.StockLimit = req.Stock
	}
	return c
}

func (req AddItemRequest) toProduct(id string) cart.Product {
	c := req.toCandidate()
	return cart.Product{
		ID:         id,
		Price:      c.UnitPrice,
		Stock:      c.StockLimit,
		Name:       c.Name,
		Image:      c.Image,
		Attributes: c.Attributes,
	}
}

// UpdateQuantityRequest sets an absolute quantity. Zero or below removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// Snapshot returns the cart of the caller.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	dto, err := h.carts.Snapshot(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// AddItem merges a product into the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req AddItemRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	who := identity.FromContext(r.Context())
	mLogger.DebugContext(r.Context(), "Received request to add item", "principal", who.String(), "id", req.ID, "_id", req.AltID)
	dto, err := h.carts.AddItem(r.Context(), who, req.toCandidate())
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// UpdateQuantity sets the quantity of a line.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id := r.PathValue("id")
	var req UpdateQuantityRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		if !web.RespondValidation(w, r, mLogger, err) {
			web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		}
		return
	}

	dto, err := h.carts.UpdateQuantity(r.Context(), identity.FromContext(r.Context()), id, *req.Quantity)
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	if _, err := h.carts.RemoveItem(r.Context(), identity.FromContext(r.Context()), r.PathValue("id")); err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Increment adds one unit of the product in the body under the id of the path.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req AddItemRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	dto, err := h.carts.AddSingleUnit(r.Context(), identity.FromContext(r.Context()), req.toProduct(r.PathValue("id")))
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// Decrement takes one unit off a line.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	dto, err := h.carts.RemoveSingleUnit(r.Context(), identity.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	dto, err := h.carts.Clear(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, dto)
}

// Quote prices the cart. The body is optional.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req checkout.QuoteRequest
	if err := web.DecodeJSON(r, &req); err != nil && !errors.Is(err, web.ErrEmptyBody) {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	sum, err := h.checkout.Quote(r.Context(), identity.FromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, sum)
}

// PlaceOrder turns the cart into an order. 201 when the order is confirmed, 202 when it awaits payment.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req checkout.PlaceOrderRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.checkout.PlaceOrder(r.Context(), identity.FromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, r, mLogger, err)
		return
	}
	status := http.StatusAccepted
	if result.Confirmed {
		status = http.StatusCreated
		mLogger.InfoContext(r.Context(), "Order placed successfully", "order_id", result.OrderID)
	}
	web.RespondJSON(w, mLogger, status, result)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondError maps domain errors to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error) {
	ctx := r.Context()
	var limitErr *cart.StockLimitError
	switch {
	case errors.As(err, &limitErr):
		mLogger.WarnContext(ctx, "Stock limit exceeded", "id", limitErr.Identity, "limit", limitErr.Limit)
		web.RespondJSON(w, mLogger, http.StatusConflict, map[string]any{"error": limitErr.Error(), "limit": limitErr.Limit})
	case errors.Is(err, cart.ErrInvalidPrice), errors.Is(err, cart.ErrInvalidIdentity), errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart):
		mLogger.WarnContext(ctx, "Rejected cart request", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrIncompleteAddress):
		mLogger.WarnContext(ctx, "Incomplete shipping address", "error", err)
		if !web.RespondValidation(w, r, mLogger, err) {
			web.RespondError(w, mLogger, http.StatusBadRequest, checkout.ErrIncompleteAddress.Error())
		}
	case errors.Is(err, cart.ErrItemNotFound):
		mLogger.WarnContext(ctx, "Item not found in cart", "id", r.PathValue("id"))
		web.RespondError(w, mLogger, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrLoginRequired):
		web.RespondError(w, mLogger, http.StatusUnauthorized, err.Error())
	case errors.Is(err, orders.ErrOrderRejected):
		mLogger.WarnContext(ctx, "Order rejected", "error", err)
		web.RespondError(w, mLogger, http.StatusUnprocessableEntity, "Order was rejected")
	case errors.Is(err, orders.ErrOrderServiceUnavailable), errors.Is(err, service.ErrIdentityResolving):
		mLogger.WarnContext(ctx, "Service unavailable", "error", err)
		web.RespondError(w, mLogger, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		mLogger.ErrorContext(ctx, "Error processing cart request", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Internal Server Error")
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
