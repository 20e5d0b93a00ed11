// Package service provides the cart operations for many principals at once.
// Each principal gets a session holding its own cart.Store; calls for one principal are serialized.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrIdentityResolving is returned while the caller's principal is not known yet.
var ErrIdentityResolving = errors.New("identity is still resolving")

// CartService defines the cart operations available to transports.
// Every method returns the cart as it is after the call.
type CartService interface {
	// Snapshot returns the cart of the principal.
	Snapshot(ctx context.Context, who identity.Identity) (*CartDto, error)

	// AddItem merges the candidate into the cart.
	// Returns cart.ErrStockLimitExceeded, cart.ErrInvalidPrice, cart.ErrInvalidIdentity or cart.ErrInvalidQuantity.
	AddItem(ctx context.Context, who identity.Identity, c cart.Candidate) (*CartDto, error)

	// AddSingleUnit adds one unit of the product.
	AddSingleUnit(ctx context.Context, who identity.Identity, p cart.Product) (*CartDto, error)

	// RemoveItem deletes the line. Returns cart.ErrItemNotFound when the cart does not contain it.
	RemoveItem(ctx context.Context, who identity.Identity, id string) (*CartDto, error)

	// RemoveSingleUnit takes one unit off the line. Returns cart.ErrItemNotFound when the cart does not contain it.
	RemoveSingleUnit(ctx context.Context, who identity.Identity, id string) (*CartDto, error)

	// UpdateQuantity sets the quantity of the line, removing it at zero or below.
	UpdateQuantity(ctx context.Context, who identity.Identity, id string, quantity int) (*CartDto, error)

	// Clear empties the cart.
	Clear(ctx context.Context, who identity.Identity) (*CartDto, error)
}

type session struct {
	mu       sync.Mutex
	store    *cart.Store
	lastUsed time.Time
	evicted  bool
}

// Service implements CartService on top of one cart.Store per principal.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*session

	newStore func() *cart.Store
	idleTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mutations  metric.Int64Counter
	rejections metric.Int64Counter
}

// NewService creates a service whose stores read through loader and write through mirror.
// Sessions unused for longer than idleTTL are dropped by EvictIdle; zero keeps them forever.
func NewService(loader cart.Loader, mirror cart.Mirror, idleTTL time.Duration, logger *slog.Logger, opts ...cart.Option) *Service {
	meter := otel.Meter("cart-service")
	mutations, err := meter.Int64Counter("cart_mutations_total", metric.WithDescription("Total number of applied cart mutations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_mutations_total counter: %v", err))
	}
	rejections, err := meter.Int64Counter("cart_rejections_total", metric.WithDescription("Total number of rejected cart mutations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_rejections_total counter: %v", err))
	}
	return &Service{
		sessions: make(map[string]*session),
		newStore: func() *cart.Store {
			return cart.NewStore(loader, mirror, logger, opts...)
		},
		idleTTL:    idleTTL,
		now:        time.Now,
		logger:     logger.With("component", "cart_service"),
		mutations:  mutations,
		rejections: rejections,
	}
}

// acquire returns the locked session of the principal, creating it on first use.
func (s *Service) acquire(key string) *session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[key]
		if !ok {
			sess = &session{}
			s.sessions[key] = sess
		}
		sess.lastUsed = s.now()
		s.mu.Unlock()

		sess.mu.Lock()
		if !sess.evicted {
			return sess
		}
		// lost the race against EvictIdle, the map holds a fresh entry by now
		sess.mu.Unlock()
	}
}

// WithCart runs fn against the store of the principal. No other call for the same principal runs concurrently.
func (s *Service) WithCart(ctx context.Context, who identity.Identity, fn func(*cart.Store) error) error {
	if who.Resolving {
		return ErrIdentityResolving
	}
	sess := s.acquire(who.String())
	defer sess.mu.Unlock()

	if sess.store == nil {
		sess.store = s.newStore()
	}
	sess.store.Sync(ctx, who)
	return fn(sess.store)
}

// EvictIdle drops sessions idle since before now-idleTTL and returns how many were dropped.
// Their state lives on in the persistence partition and is loaded again on the next call.
func (s *Service) EvictIdle(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, sess := range s.sessions {
		if !sess.lastUsed.Before(cutoff) || !sess.mu.TryLock() {
			continue
		}
		sess.evicted = true
		sess.mu.Unlock()
		delete(s.sessions, key)
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle cart sessions", "count", evicted, "remaining", len(s.sessions))
	}
	return evicted
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) Snapshot(ctx context.Context, who identity.Identity) (*CartDto, error) {
	var dto *CartDto
	err := s.WithCart(ctx, who, func(st *cart.Store) error {
		dto = toDto(st)
		return nil
	})
	return dto, err
}

func (s *Service) AddItem(ctx context.Context, who identity.Identity, c cart.Candidate) (*CartDto, error) {
	return s.mutate(ctx, who, "add_item", func(st *cart.Store) error {
		return st.AddItem(c)
	})
}

func (s *Service) AddSingleUnit(ctx context.Context, who identity.Identity, p cart.Product) (*CartDto, error) {
	return s.mutate(ctx, who, "add_single_unit", func(st *cart.Store) error {
		return st.AddSingleUnit(p)
	})
}

func (s *Service) RemoveItem(ctx context.Context, who identity.Identity, id string) (*CartDto, error) {
	return s.mutate(ctx, who, "remove_item", func(st *cart.Store) error {
		if !st.RemoveItem(id) {
			return cart.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) RemoveSingleUnit(ctx context.Context, who identity.Identity, id string) (*CartDto, error) {
	return s.mutate(ctx, who, "remove_single_unit", func(st *cart.Store) error {
		if !st.RemoveSingleUnit(id) {
			return cart.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, who identity.Identity, id string, quantity int) (*CartDto, error) {
	return s.mutate(ctx, who, "update_quantity", func(st *cart.Store) error {
		return st.UpdateQuantity(id, quantity)
	})
}

func (s *Service) Clear(ctx context.Context, who identity.Identity) (*CartDto, error) {
	return s.mutate(ctx, who, "clear", func(st *cart.Store) error {
		st.Clear()
		return nil
	})
}

// mutate applies op and records the outcome. The snapshot is taken under the session lock.
func (s *Service) mutate(ctx context.Context, who identity.Identity, op string, fn func(*cart.Store) error) (*CartDto, error) {
	var dto *CartDto
	err := s.WithCart(ctx, who, func(st *cart.Store) error {
		if err := fn(st); err != nil {
			return err
		}
		dto = toDto(st)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrIdentityResolving) {
			s.rejections.Add(ctx, 1, metric.WithAttributes(
				attribute.String("operation", op),
				attribute.String("reason", rejectionReason(err)),
			))
		}
		return nil, err
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	s.logger.DebugContext(ctx, "cart updated", "principal", who.String(), "operation", op, "items", dto.DistinctCount)
	return dto, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, cart.ErrStockLimitExceeded):
		return "stock_limit"
	case errors.Is(err, cart.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, cart.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, cart.ErrItemNotFound):
		return "not_found"
	default:
		return "other"
	}
}
