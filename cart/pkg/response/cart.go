package response

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the authoritative cart shape the upstream API returns. Totals is
// always a pure function of Items; the agent never mutates it independently.
type Cart struct {
	ID             uuid.UUID  `json:"id"`
	Items          []CartLine `json:"items"`
	Totals         Totals     `json:"totals"`
	Currency       string     `json:"currency"`
	AppliedCoupons []Coupon   `json:"appliedCoupons,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CartLine carries exactly one of ProductID/ServiceID.
type CartLine struct {
	ID             uuid.UUID         `json:"id"`
	ProductID      *uuid.UUID        `json:"productId,omitempty"`
	ServiceID      *uuid.UUID        `json:"serviceId,omitempty"`
	Quantity       int               `json:"quantity"`
	UnitPrice      decimal.Decimal   `json:"unitPrice"`
	OriginalPrice  *decimal.Decimal  `json:"originalPrice,omitempty"`
	Discount       *decimal.Decimal  `json:"discount,omitempty"`
	Customizations map[string]string `json:"customizations,omitempty"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Savings  decimal.Decimal `json:"savings"`
}

type Coupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}
