package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
)

// CartCheckedOutEvent is published after an order was accepted for a cart. Amounts are decimal strings.
type CartCheckedOutEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	OrderID     string    `json:"order_id"`
	PrincipalID string    `json:"principal_id"`
	Items       int       `json:"items"`
	Units       int       `json:"units"`
	Total       string    `json:"total"`
	CheckedOut  time.Time `json:"checked_out_at"`
}

func (e CartCheckedOutEvent) Subject() string {
	return messaging.CartsCheckedOutSubject
}

func (e CartCheckedOutEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
