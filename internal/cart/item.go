// Package cart implements the shopping cart store: line items keyed by product identity, a pure reducer for every
// state transition, stock and price validation, derived queries and a write-through mirror of the state into the
// active principal's persistence partition.
package cart

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Defaults applied by AddSingleUnit when the product lacks display data or a stock figure.
const (
	DefaultName       = "Unknown Product"
	DefaultImage      = "/images/placeholder.png"
	DefaultStockLimit = 999
)

// LineItem is one row of the cart.
type LineItem struct {
	Identity   string
	Quantity   int
	UnitPrice  decimal.Decimal
	StockLimit *int // nil means unbounded
	Name       string
	Image      string
	Attributes map[string]any
}

// Subtotal returns UnitPrice x Quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// exceeds reports whether quantity is above the item's stock limit.
func (i LineItem) exceeds(quantity int) bool {
	return i.StockLimit != nil && quantity > *i.StockLimit
}

func (i LineItem) clone() LineItem {
	c := i
	if i.StockLimit != nil {
		limit := *i.StockLimit
		c.StockLimit = &limit
	}
	if i.Attributes != nil {
		c.Attributes = maps.Clone(i.Attributes)
	}
	return c
}

// Candidate is an add request. ID and AltID are the two interchangeable identifier fields ("id" and "_id")
// product payloads arrive with. A zero Quantity means one unit. UnitPrice is raw input and is validated by ParsePrice.
type Candidate struct {
	ID         string
	AltID      string
	Quantity   int
	UnitPrice  any
	StockLimit *int
	Name       string
	Image      string
	Attributes map[string]any
}

// Product is the catalog view of a product used by the single-unit operations.
type Product struct {
	ID         string
	AltID      string
	Price      any
	Stock      *int
	Name       string
	Image      string
	Attributes map[string]any
}

// ResolveIdentity returns the canonical identity out of the primary and alternate identifier fields.
func ResolveIdentity(id, altID string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return strings.TrimSpace(altID)
}

// ParsePrice validates raw price input: it must be a finite, non-negative number or numeric string.
func ParsePrice(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch p := v.(type) {
	case decimal.Decimal:
		d = p
	case *decimal.Decimal:
		if p == nil {
			return decimal.Zero, ErrInvalidPrice
		}
		d = *p
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return decimal.Zero, ErrInvalidPrice
		}
		d = decimal.NewFromFloat(p)
	case float32:
		return ParsePrice(float64(p))
	case int:
		d = decimal.NewFromInt(int64(p))
	case int32:
		d = decimal.NewFromInt32(p)
	case int64:
		d = decimal.NewFromInt(p)
	case json.Number:
		d, err = decimal.NewFromString(p.String())
	case string:
		s := strings.TrimSpace(p)
		if s == "" {
			return decimal.Zero, ErrInvalidPrice
		}
		d, err = decimal.NewFromString(s)
	default:
		return decimal.Zero, ErrInvalidPrice
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// coercePrice is ParsePrice for data that must not fail: anything invalid becomes zero.
func coercePrice(v any) decimal.Decimal {
	d, err := ParsePrice(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizeStock drops negative stock figures, which carry no usable limit.
func normalizeStock(stock *int) *int {
	if stock == nil || *stock < 0 {
		return nil
	}
	limit := *stock
	return &limit
}
