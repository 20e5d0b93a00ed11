package service

import (
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/shopspring/decimal"
)

// CartDto represents the cart of one principal. Money is rendered as decimal strings.
type CartDto struct {
	Principal      string          `json:"principal"`
	Items          []ItemDto       `json:"items"`
	DistinctCount  int             `json:"distinctCount"`
	TotalUnitCount int             `json:"totalUnitCount"`
	TotalValue     decimal.Decimal `json:"totalValue"`
}

// ItemDto represents one line of the cart.
type ItemDto struct {
	Identity   string          `json:"identity"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	StockLimit *int            `json:"stockLimit,omitempty"`
	Name       string          `json:"name,omitempty"`
	Image      string          `json:"image,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

func toDto(st *cart.Store) *CartDto {
	items := st.Items()
	dto := &CartDto{
		Principal:      st.Principal().String(),
		Items:          make([]ItemDto, len(items)),
		DistinctCount:  st.DistinctCount(),
		TotalUnitCount: st.TotalUnitCount(),
		TotalValue:     st.TotalValue(),
	}
	for i, item := range items {
		dto.Items[i] = ItemDto{
			Identity:   item.Identity,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Subtotal:   item.Subtotal(),
			StockLimit: item.StockLimit,
			Name:       item.Name,
			Image:      item.Image,
			Attributes: item.Attributes,
		}
	}
	return dto
}
