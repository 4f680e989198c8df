package state

import (
	"github.com/shopspring/decimal"

	"github.com/copperbear/storefront/cart/pkg/response"
)

// Display-totals policy for carts the agent prices itself (guest previews
// before enrichment). Authenticated totals arrive recomputed from the same
// rules server-side; the reducer re-derives them anyway so the invariant
// total == subtotal - discount + shipping + tax holds on every transition.
const Currency = "INR"

var (
	taxRate               = decimal.NewFromFloat(0.18)
	flatShipping          = decimal.NewFromInt(99)
	freeShippingThreshold = decimal.NewFromInt(1000)
)

func ComputeTotals(items []response.CartLine, coupons []response.Coupon) response.Totals {
	subtotal := decimal.Zero
	lineDiscount := decimal.Zero
	compareSavings := decimal.Zero

	for _, line := range items {
		quantity := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(line.UnitPrice.Mul(quantity))
		if line.Discount != nil {
			lineDiscount = lineDiscount.Add(*line.Discount)
		}
		if line.OriginalPrice != nil && line.OriginalPrice.GreaterThan(line.UnitPrice) {
			compareSavings = compareSavings.Add(
				line.OriginalPrice.Sub(line.UnitPrice).Mul(quantity),
			)
		}
	}

	discount := lineDiscount
	for _, coupon := range coupons {
		discount = discount.Add(coupon.Discount)
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	shipping := decimal.Zero
	taxable := subtotal.Sub(discount)
	if len(items) > 0 && taxable.LessThan(freeShippingThreshold) {
		shipping = flatShipping
	}

	tax := taxable.Mul(taxRate).Round(2)
	total := subtotal.Sub(discount).Add(shipping).Add(tax)

	return response.Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
		Savings:  compareSavings.Add(discount),
	}
}
