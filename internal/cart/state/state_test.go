package state

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/guest"
)

func ptr[T any](v T) *T { return &v }

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []response.CartLine
		coupons  []response.Coupon
		expected response.Totals
	}{
		{
			name:  "given empty cart should return zero totals without shipping",
			items: nil,
			expected: response.Totals{
				Subtotal: decimal.Zero,
				Discount: decimal.Zero,
				Shipping: decimal.Zero,
				Tax:      decimal.Zero.Round(2),
				Total:    decimal.Zero.Round(2),
				Savings:  decimal.Zero,
			},
		},
		{
			name: "given subtotal below threshold should charge flat shipping",
			items: []response.CartLine{
				{ID: uuid.New(), Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
			},
			expected: response.Totals{
				Subtotal: decimal.NewFromInt(200),
				Discount: decimal.Zero,
				Shipping: decimal.NewFromInt(99),
				Tax:      decimal.NewFromInt(36).Round(2),
				Total:    decimal.NewFromInt(335).Round(2),
				Savings:  decimal.Zero,
			},
		},
		{
			name: "given subtotal at threshold should waive shipping",
			items: []response.CartLine{
				{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
			},
			expected: response.Totals{
				Subtotal: decimal.NewFromInt(1000),
				Discount: decimal.Zero,
				Shipping: decimal.Zero,
				Tax:      decimal.NewFromInt(180).Round(2),
				Total:    decimal.NewFromInt(1180).Round(2),
				Savings:  decimal.Zero,
			},
		},
		{
			name: "given coupon discount exceeding subtotal should clamp to subtotal",
			items: []response.CartLine{
				{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
			},
			coupons: []response.Coupon{{Code: "BIG", Discount: decimal.NewFromInt(500)}},
			expected: response.Totals{
				Subtotal: decimal.NewFromInt(50),
				Discount: decimal.NewFromInt(50),
				Shipping: decimal.NewFromInt(99),
				Tax:      decimal.Zero.Round(2),
				Total:    decimal.NewFromInt(99).Round(2),
				Savings:  decimal.NewFromInt(50),
			},
		},
		{
			name: "given compare-at price should report savings without changing total",
			items: []response.CartLine{
				{
					ID:            uuid.New(),
					Quantity:      2,
					UnitPrice:     decimal.NewFromInt(400),
					OriginalPrice: ptr(decimal.NewFromInt(500)),
				},
			},
			expected: response.Totals{
				Subtotal: decimal.NewFromInt(800),
				Discount: decimal.Zero,
				Shipping: decimal.NewFromInt(99),
				Tax:      decimal.NewFromInt(144).Round(2),
				Total:    decimal.NewFromInt(1043).Round(2),
				Savings:  decimal.NewFromInt(200),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := ComputeTotals(tt.items, tt.coupons)
			assert.True(t, tt.expected.Subtotal.Equal(actual.Subtotal), "subtotal: expected %s got %s", tt.expected.Subtotal, actual.Subtotal)
			assert.True(t, tt.expected.Discount.Equal(actual.Discount), "discount: expected %s got %s", tt.expected.Discount, actual.Discount)
			assert.True(t, tt.expected.Shipping.Equal(actual.Shipping), "shipping: expected %s got %s", tt.expected.Shipping, actual.Shipping)
			assert.True(t, tt.expected.Tax.Equal(actual.Tax), "tax: expected %s got %s", tt.expected.Tax, actual.Tax)
			assert.True(t, tt.expected.Total.Equal(actual.Total), "total: expected %s got %s", tt.expected.Total, actual.Total)
			assert.True(t, tt.expected.Savings.Equal(actual.Savings), "savings: expected %s got %s", tt.expected.Savings, actual.Savings)
		})
	}
}

func TestTotalsInvariantHoldsAfterEveryAction(t *testing.T) {
	lineId := uuid.New()
	s := NewState()
	actions := []Action{
		SetCart{Cart: response.Cart{Items: []response.CartLine{
			{ID: lineId, Quantity: 3, UnitPrice: decimal.NewFromInt(250)},
			{ID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(120)},
		}}},
		OptimisticUpdateItem{ID: lineId, Quantity: 5},
		OptimisticRemoveItem{ID: lineId},
	}

	for _, action := range actions {
		s = Reduce(s, action)
		expected := s.Cart.Totals.Subtotal.
			Sub(s.Cart.Totals.Discount).
			Add(s.Cart.Totals.Shipping).
			Add(s.Cart.Totals.Tax)
		assert.True(t, expected.Equal(s.Cart.Totals.Total),
			"total invariant broken: expected %s got %s", expected, s.Cart.Totals.Total)
	}
}

func TestAddGuestItemMergesQuantityForSameProduct(t *testing.T) {
	productId := uuid.New()
	s := NewState()

	s = Reduce(s, AddGuestItem{Item: guest.CartItem{ID: uuid.New(), ProductID: &productId, Quantity: 2}})
	s = Reduce(s, AddGuestItem{Item: guest.CartItem{ID: uuid.New(), ProductID: &productId, Quantity: 3}})

	assert.Len(t, s.GuestItems, 1)
	assert.Equal(t, 5, s.GuestItems[0].Quantity)
	assert.Equal(t, 5, s.TotalQuantity)
	assert.Equal(t, 1, s.ItemsCount)
}

func TestUpdateGuestQuantityZeroRemovesLine(t *testing.T) {
	itemId := uuid.New()
	productId := uuid.New()
	s := NewState()
	s = Reduce(s, AddGuestItem{Item: guest.CartItem{ID: itemId, ProductID: &productId, Quantity: 4}})

	s = Reduce(s, UpdateGuestQuantity{ID: itemId, Quantity: 0})

	assert.Empty(t, s.GuestItems)
	assert.Equal(t, 0, s.TotalQuantity)
}

func TestDeriveCountsPreferGuestItems(t *testing.T) {
	productId := uuid.New()
	s := NewState()
	s = Reduce(s, SetCart{Cart: response.Cart{Items: []response.CartLine{
		{ID: uuid.New(), Quantity: 9, UnitPrice: decimal.NewFromInt(10)},
	}}})
	assert.Equal(t, 9, s.TotalQuantity)

	s = Reduce(s, AddGuestItem{Item: guest.CartItem{ID: uuid.New(), ProductID: &productId, Quantity: 2}})
	assert.Equal(t, 2, s.TotalQuantity)
	assert.Equal(t, 1, s.ItemsCount)

	s = Reduce(s, ClearGuestCart{})
	assert.Equal(t, 9, s.TotalQuantity)
}

func TestReduceDoesNotMutateInputState(t *testing.T) {
	lineId := uuid.New()
	before := Reduce(NewState(), SetCart{Cart: response.Cart{Items: []response.CartLine{
		{ID: lineId, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	}}})

	after := Reduce(before, OptimisticUpdateItem{ID: lineId, Quantity: 7})

	assert.Equal(t, 1, before.Cart.Items[0].Quantity)
	assert.Equal(t, 7, after.Cart.Items[0].Quantity)
}

func TestRemoveGuestItemIsIdempotent(t *testing.T) {
	itemId := uuid.New()
	productId := uuid.New()
	s := NewState()
	s = Reduce(s, AddGuestItem{Item: guest.CartItem{ID: itemId, ProductID: &productId, Quantity: 1}})

	s = Reduce(s, RemoveGuestItem{ID: itemId})
	s = Reduce(s, RemoveGuestItem{ID: itemId})

	assert.Empty(t, s.GuestItems)
}

func TestMigrationStatusTransitions(t *testing.T) {
	s := NewState()
	assert.Equal(t, MigrationIdle, s.Migration)

	s = Reduce(s, SetMigrationStatus{Status: MigrationRunning})
	assert.Equal(t, MigrationRunning, s.Migration)

	s = Reduce(s, SetMigrationStatus{Status: MigrationDone})
	assert.Equal(t, MigrationDone, s.Migration)
}
