package cart

import "slices"

// State is the aggregate held by a Store. Items are unique by Identity and kept in insertion order.
type State struct {
	Items []LineItem
}

func (s State) index(identity string) int {
	return slices.IndexFunc(s.Items, func(i LineItem) bool { return i.Identity == identity })
}

type actionKind int

const (
	actionInit actionKind = iota
	actionAdd
	actionRemove
	actionUpdateQuantity
	actionClear
)

// action is a state transition request. item is set for add, items for init, identity (and quantity) for remove
// and update.
type action struct {
	kind     actionKind
	item     LineItem
	items    []LineItem
	identity string
	quantity int
}

// reduce applies a to s and returns the next state. It never mutates s: every change produces fresh slices so a
// previously returned state stays valid. On error the returned state is s.
func reduce(s State, a action) (State, error) {
	switch a.kind {
	case actionInit:
		return State{Items: cloneItems(a.items)}, nil

	case actionAdd:
		if i := s.index(a.item.Identity); i >= 0 {
			existing := s.Items[i]
			merged := existing.Quantity + a.item.Quantity
			if existing.exceeds(merged) {
				return s, &StockLimitError{Identity: existing.Identity, Limit: *existing.StockLimit}
			}
			next := cloneItems(s.Items)
			// the price of units already in the cart is pinned at first insert
			next[i].Quantity = merged
			return State{Items: next}, nil
		}
		if a.item.exceeds(a.item.Quantity) {
			return s, &StockLimitError{Identity: a.item.Identity, Limit: *a.item.StockLimit}
		}
		next := make([]LineItem, 0, len(s.Items)+1)
		next = append(next, cloneItems(s.Items)...)
		next = append(next, a.item.clone())
		return State{Items: next}, nil

	case actionRemove:
		i := s.index(a.identity)
		if i < 0 {
			return s, ErrItemNotFound
		}
		return State{Items: slices.Delete(cloneItems(s.Items), i, i+1)}, nil

	case actionUpdateQuantity:
		i := s.index(a.identity)
		if i < 0 {
			return s, ErrItemNotFound
		}
		item := s.Items[i]
		if item.exceeds(a.quantity) {
			return s, &StockLimitError{Identity: item.Identity, Limit: *item.StockLimit}
		}
		if a.quantity <= 0 {
			return reduce(s, action{kind: actionRemove, identity: a.identity})
		}
		next := cloneItems(s.Items)
		next[i].Quantity = a.quantity
		return State{Items: next}, nil

	case actionClear:
		return State{Items: []LineItem{}}, nil
	}
	return s, nil
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}
