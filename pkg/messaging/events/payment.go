package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
)

// OrderPaidEvent is published by the order API once the payment of a pending order was verified.
type OrderPaidEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	OrderID     string    `json:"order_id"`
	PrincipalID string    `json:"principal_id"`
	PaidAt      time.Time `json:"paid_at"`
}

func (e OrderPaidEvent) Subject() string {
	return messaging.OrdersPaidSubject
}

func (e OrderPaidEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
