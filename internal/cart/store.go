package cart

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/partition"
	"github.com/shopspring/decimal"
)

// Loader reads the payload stored under a partition key. It returns partition.ErrNotFound when the key is absent.
type Loader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// Mirror accepts full state snapshots in the order they were produced.
type Mirror interface {
	Write(key string, payload []byte)
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the prefix of the partition keys the store derives.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// Store holds the cart of one principal at a time. It is not safe for concurrent use.
type Store struct {
	loader Loader
	mirror Mirror
	prefix string
	logger *slog.Logger

	state     State
	principal identity.Identity
	key       string
	loaded    bool
	ready     bool
}

// NewStore returns a store that is not ready until Sync is called with a resolved identity.
func NewStore(loader Loader, mirror Mirror, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		loader: loader,
		mirror: mirror,
		prefix: partition.DefaultPrefix,
		logger: logger.With("component", "cart_store"),
		state:  State{Items: []LineItem{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync aligns the store with the identity provider. While the identity is resolving the store is not ready and
// persistence is not touched. A resolved identity loads its partition only when the principal changed since the
// last load.
func (s *Store) Sync(ctx context.Context, who identity.Identity) {
	if who.Resolving {
		s.ready = false
		return
	}
	if s.loaded && s.principal.PrincipalID == who.PrincipalID {
		s.ready = true
		return
	}

	key := partition.Key(s.prefix, who.PrincipalID)
	items := s.load(ctx, key)
	s.state, _ = reduce(s.state, action{kind: actionInit, items: items})
	s.principal = identity.Identity{PrincipalID: who.PrincipalID}
	s.key = key
	s.loaded = true
	s.ready = true
	s.logger.Debug("cart partition loaded", "key", key, "items", len(items))
}

func (s *Store) load(ctx context.Context, key string) []LineItem {
	data, err := s.loader.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, partition.ErrNotFound) {
			s.logger.Warn("failed to read cart partition, starting empty", "key", key, "error", err)
		}
		return []LineItem{}
	}
	items, err := Decode(data)
	if err != nil {
		s.logger.Warn("corrupt cart partition, starting empty", "key", key, "error", err)
		return []LineItem{}
	}
	return items
}

// Ready reports whether operations and queries may be called.
func (s *Store) Ready() bool {
	return s.ready
}

// Principal returns the principal whose partition is loaded.
func (s *Store) Principal() identity.Identity {
	return s.principal
}

func (s *Store) mustBeReady() {
	if !s.ready {
		panic(ErrNotInitialized)
	}
}

func (s *Store) dispatch(a action) error {
	next, err := reduce(s.state, a)
	if err != nil {
		return err
	}
	s.state = next
	s.persist()
	return nil
}

// persist hands the current snapshot to the mirror. Encoding happens here so that snapshots leave the store in
// mutation order.
func (s *Store) persist() {
	data, err := Encode(s.state.Items)
	if err != nil {
		s.logger.Error("failed to serialize cart", "key", s.key, "error", err)
		return
	}
	s.mirror.Write(s.key, data)
}

// AddItem merges the candidate into the line with the same identity or appends a new line.
// A merge keeps the price of the existing line. A new line requires a valid price.
func (s *Store) AddItem(c Candidate) error {
	s.mustBeReady()

	id := ResolveIdentity(c.ID, c.AltID)
	if id == "" {
		return ErrInvalidIdentity
	}
	quantity := c.Quantity
	switch {
	case quantity < 0:
		return ErrInvalidQuantity
	case quantity == 0:
		quantity = 1
	}

	item := LineItem{
		Identity:   id,
		Quantity:   quantity,
		StockLimit: normalizeStock(c.StockLimit),
		Name:       c.Name,
		Image:      c.Image,
		Attributes: maps.Clone(c.Attributes),
	}
	if s.state.index(id) < 0 {
		price, err := ParsePrice(c.UnitPrice)
		if err != nil {
			return err
		}
		item.UnitPrice = price
	}
	return s.dispatch(action{kind: actionAdd, item: item})
}

// RemoveItem deletes the line regardless of its quantity. It reports false when there was nothing to remove.
func (s *Store) RemoveItem(id string) bool {
	s.mustBeReady()
	return s.dispatch(action{kind: actionRemove, identity: id}) == nil
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or below removes the line.
func (s *Store) UpdateQuantity(id string, quantity int) error {
	s.mustBeReady()
	return s.dispatch(action{kind: actionUpdateQuantity, identity: id, quantity: quantity})
}

// Clear empties the cart. The partition is overwritten with an empty list.
func (s *Store) Clear() {
	s.mustBeReady()
	_ = s.dispatch(action{kind: actionClear})
}

// AddSingleUnit adds one unit of the product, filling in display and stock defaults.
func (s *Store) AddSingleUnit(p Product) error {
	s.mustBeReady()

	id := ResolveIdentity(p.ID, p.AltID)
	if id == "" {
		return ErrInvalidIdentity
	}
	price, err := ParsePrice(p.Price)
	if err != nil {
		return err
	}
	stock := normalizeStock(p.Stock)
	if stock == nil {
		limit := DefaultStockLimit
		stock = &limit
	}
	item := LineItem{
		Identity:   id,
		Quantity:   1,
		UnitPrice:  price,
		StockLimit: stock,
		Name:       p.Name,
		Image:      p.Image,
		Attributes: maps.Clone(p.Attributes),
	}
	if item.Name == "" {
		item.Name = DefaultName
	}
	if item.Image == "" {
		item.Image = DefaultImage
	}
	return s.dispatch(action{kind: actionAdd, item: item})
}

// RemoveSingleUnit takes one unit off the line, removing it when it was the last one.
// It reports false when nothing was removed.
func (s *Store) RemoveSingleUnit(id string) bool {
	s.mustBeReady()

	switch q := s.QuantityOf(id); {
	case q == 0:
		return false
	case q > 1:
		return s.UpdateQuantity(id, q-1) == nil
	default:
		return s.RemoveItem(id)
	}
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mustBeReady()
	return cloneItems(s.state.Items)
}

// QuantityOf returns the quantity of a line, 0 when absent.
func (s *Store) QuantityOf(id string) int {
	s.mustBeReady()
	if i := s.state.index(id); i >= 0 {
		return s.state.Items[i].Quantity
	}
	return 0
}

func (s *Store) Contains(id string) bool {
	s.mustBeReady()
	return s.state.index(id) >= 0
}

func (s *Store) DistinctCount() int {
	s.mustBeReady()
	return len(s.state.Items)
}

func (s *Store) TotalUnitCount() int {
	s.mustBeReady()
	total := 0
	for _, item := range s.state.Items {
		total += item.Quantity
	}
	return total
}

// TotalValue sums price x quantity. Prices are re-validated and anything invalid counts as zero.
func (s *Store) TotalValue() decimal.Decimal {
	s.mustBeReady()
	total := decimal.Zero
	for _, item := range s.state.Items {
		total = total.Add(coercePrice(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
