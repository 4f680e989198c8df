package state

import (
	"github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/guest"
)

// Reduce maps (state, action) to a new state. It is referentially pure: no
// I/O, no clock, no randomness, input state never mutated.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case SetCart:
		s.Cart = a.Cart
		if s.Cart.Items == nil {
			s.Cart.Items = []response.CartLine{}
		}
		if s.Cart.Currency == "" {
			s.Cart.Currency = Currency
		}

	case SetGuestItems:
		items := a.Items
		if items == nil {
			items = []guest.CartItem{}
		}
		s.GuestItems = items

	case AddGuestItem:
		items := cloneGuestItems(s.GuestItems)
		merged := false
		for i, item := range items {
			if sameGuestContext(item, a.Item) {
				items[i].Quantity += a.Item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			items = append([]guest.CartItem{a.Item}, items...)
		}
		s.GuestItems = items

	case UpdateGuestQuantity:
		items := cloneGuestItems(s.GuestItems)
		for i, item := range items {
			if item.ID == a.ID {
				if a.Quantity <= 0 {
					items = append(items[:i], items[i+1:]...)
				} else {
					items[i].Quantity = a.Quantity
				}
				break
			}
		}
		s.GuestItems = items

	case RemoveGuestItem:
		items := cloneGuestItems(s.GuestItems)
		for i, item := range items {
			if item.ID == a.ID {
				items = append(items[:i], items[i+1:]...)
				break
			}
		}
		s.GuestItems = items

	case ClearGuestCart:
		s.GuestItems = []guest.CartItem{}

	case OptimisticUpdateItem:
		lines := cloneLines(s.Cart.Items)
		for i, line := range lines {
			if line.ID == a.ID {
				if a.Quantity <= 0 {
					lines = append(lines[:i], lines[i+1:]...)
				} else {
					lines[i].Quantity = a.Quantity
				}
				break
			}
		}
		s.Cart.Items = lines

	case OptimisticRemoveItem:
		lines := cloneLines(s.Cart.Items)
		for i, line := range lines {
			if line.ID == a.ID {
				lines = append(lines[:i], lines[i+1:]...)
				break
			}
		}
		s.Cart.Items = lines

	case SetMigrationStatus:
		s.Migration = a.Status
	}

	s.Cart.Totals = ComputeTotals(s.Cart.Items, s.Cart.AppliedCoupons)
	s.TotalQuantity, s.ItemsCount = derive(s)
	return s
}

// derive recomputes the quantity aggregates from whichever item set is
// live: guest lines when any exist, cached cart lines otherwise.
func derive(s State) (totalQuantity, itemsCount int) {
	if len(s.GuestItems) > 0 {
		for _, item := range s.GuestItems {
			totalQuantity += item.Quantity
		}
		return totalQuantity, len(s.GuestItems)
	}
	for _, line := range s.Cart.Items {
		totalQuantity += line.Quantity
	}
	return totalQuantity, len(s.Cart.Items)
}

func cloneGuestItems(items []guest.CartItem) []guest.CartItem {
	cloned := make([]guest.CartItem, len(items))
	copy(cloned, items)
	return cloned
}

func cloneLines(lines []response.CartLine) []response.CartLine {
	cloned := make([]response.CartLine, len(lines))
	copy(cloned, lines)
	return cloned
}

func sameGuestContext(a, b guest.CartItem) bool {
	if a.ProductID != nil && b.ProductID != nil {
		return *a.ProductID == *b.ProductID
	}
	if a.ServiceID != nil && b.ServiceID != nil {
		return *a.ServiceID == *b.ServiceID
	}
	return false
}
