// Package checkout turns the cart of a signed-in principal into an order: totals, submission to the order API,
// clearing the cart once the order is confirmed, and the checked-out event.
package checkout

import (
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Pricing holds the shipping rules of the shop.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultPricing ships for free from 500, otherwise charges 50.
var DefaultPricing = Pricing{
	FreeShippingThreshold: decimal.NewFromInt(500),
	ShippingFee:           decimal.NewFromInt(50),
}

// Options are the per-order inputs of Summarize. GSTRates maps product identity to a percentage.
type Options struct {
	Pricing
	CouponCode string
	Discount   decimal.Decimal
	GSTRates   map[string]decimal.Decimal
}

// SummaryLine is one cart line with its tax.
type SummaryLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	GSTRate   decimal.Decimal `json:"gstRate"`
	GST       decimal.Decimal `json:"gst"`
}

// Summary is the priced cart.
type Summary struct {
	Lines              []SummaryLine   `json:"lines"`
	Units              int             `json:"units"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountedSubtotal decimal.Decimal `json:"discountedSubtotal"`
	GST                decimal.Decimal `json:"gst"`
	Shipping           decimal.Decimal `json:"shipping"`
	Total              decimal.Decimal `json:"total"`
	CouponCode         string          `json:"couponCode,omitempty"`
}

// Summarize prices items. The discount is clamped to [0, subtotal] and taken off before tax: the GST of every line
// is scaled by discountedSubtotal/subtotal. Shipping is free from Pricing.FreeShippingThreshold on, and nothing is
// charged for an empty cart. Money is rounded to two places at the end.
func Summarize(items []cart.LineItem, opts Options) Summary {
	sum := Summary{
		Lines:      make([]SummaryLine, 0, len(items)),
		CouponCode: opts.CouponCode,
	}

	subtotal, gst := decimal.Zero, decimal.Zero
	for _, item := range items {
		rate := opts.GSTRates[item.Identity]
		if rate.IsNegative() {
			rate = decimal.Zero
		}
		lineSubtotal := item.Subtotal()
		lineGST := lineSubtotal.Mul(rate).Div(hundred)
		subtotal = subtotal.Add(lineSubtotal)
		gst = gst.Add(lineGST)
		sum.Units += item.Quantity
		sum.Lines = append(sum.Lines, SummaryLine{
			ProductID: item.Identity,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
			Subtotal:  lineSubtotal.Round(moneyPlaces),
			GSTRate:   rate,
			GST:       lineGST.Round(moneyPlaces),
		})
	}

	discount := decimal.Max(decimal.Zero, decimal.Min(opts.Discount, subtotal))
	discounted := subtotal.Sub(discount)
	if discount.IsPositive() {
		gst = gst.Mul(discounted).Div(subtotal)
	}

	shipping := decimal.Zero
	if len(items) > 0 && discounted.LessThan(opts.FreeShippingThreshold) {
		shipping = opts.ShippingFee
	}

	sum.Subtotal = subtotal.Round(moneyPlaces)
	sum.Discount = discount.Round(moneyPlaces)
	sum.DiscountedSubtotal = discounted.Round(moneyPlaces)
	sum.GST = gst.Round(moneyPlaces)
	sum.Shipping = shipping.Round(moneyPlaces)
	sum.Total = discounted.Add(gst).Add(shipping).Round(moneyPlaces)
	return sum
}
