package cart

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is the panic value of any operation called before the store has loaded a partition.
var ErrNotInitialized = errors.New("cart store is not initialized")

var ErrStockLimitExceeded = errors.New("stock limit exceeded")
var ErrInvalidPrice = errors.New("invalid price")
var ErrInvalidIdentity = errors.New("invalid product identity")
var ErrInvalidQuantity = errors.New("invalid quantity")
var ErrItemNotFound = errors.New("item not found in cart")

// StockLimitError reports the stock limit a mutation ran into.
type StockLimitError struct {
	Identity string
	Limit    int
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("only %d items of %s available in stock", e.Limit, e.Identity)
}

func (e *StockLimitError) Unwrap() error {
	return ErrStockLimitExceeded
}
