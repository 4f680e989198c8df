package state

import (
	"github.com/google/uuid"

	"github.com/copperbear/storefront/internal/guest"
	"github.com/copperbear/storefront/wishlist/pkg/response"
)

type MigrationStatus string

const (
	MigrationIdle    MigrationStatus = "idle"
	MigrationRunning MigrationStatus = "running"
	MigrationFailed  MigrationStatus = "failed"
	MigrationDone    MigrationStatus = "done"
)

// State is the wishlist view served to the UI. Items carries the
// server-enriched entries (for guests, the result of the unified enrich
// call); GuestItems mirrors the Guest Store.
type State struct {
	Items      []response.Item
	GuestItems []guest.WishlistItem
	Migration  MigrationStatus
	ItemsCount int
}

func NewState() State {
	return State{Items: []response.Item{}, Migration: MigrationIdle}
}

// Action is the sealed set of wishlist state transitions.
type Action interface {
	isAction()
}

type SetWishlist struct {
	Items []response.Item
}

type SetGuestItems struct {
	Items []guest.WishlistItem
}

type AddGuestItem struct {
	Item guest.WishlistItem
}

type RemoveGuestItem struct {
	ID uuid.UUID
}

type ClearGuest struct{}

type OptimisticRemoveItem struct {
	ID uuid.UUID
}

type AddServerItem struct {
	Item response.Item
}

type ReplaceServerItem struct {
	Item response.Item
}

type SetMigrationStatus struct {
	Status MigrationStatus
}

func (SetWishlist) isAction()          {}
func (SetGuestItems) isAction()        {}
func (AddGuestItem) isAction()         {}
func (RemoveGuestItem) isAction()      {}
func (ClearGuest) isAction()           {}
func (OptimisticRemoveItem) isAction() {}
func (AddServerItem) isAction()        {}
func (ReplaceServerItem) isAction()    {}
func (SetMigrationStatus) isAction()   {}

// Reduce maps (state, action) to a new state with no side effects.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case SetWishlist:
		items := a.Items
		if items == nil {
			items = []response.Item{}
		}
		s.Items = items

	case SetGuestItems:
		items := a.Items
		if items == nil {
			items = []guest.WishlistItem{}
		}
		s.GuestItems = items

	case AddGuestItem:
		items := make([]guest.WishlistItem, len(s.GuestItems))
		copy(items, s.GuestItems)
		duplicate := false
		for _, item := range items {
			if sameGuestContext(item, a.Item) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			items = append([]guest.WishlistItem{a.Item}, items...)
		}
		s.GuestItems = items

	case RemoveGuestItem:
		items := make([]guest.WishlistItem, len(s.GuestItems))
		copy(items, s.GuestItems)
		for i, item := range items {
			if item.ID == a.ID {
				items = append(items[:i], items[i+1:]...)
				break
			}
		}
		s.GuestItems = items

	case ClearGuest:
		s.GuestItems = []guest.WishlistItem{}

	case OptimisticRemoveItem:
		items := make([]response.Item, len(s.Items))
		copy(items, s.Items)
		for i, item := range items {
			if item.ID == a.ID {
				items = append(items[:i], items[i+1:]...)
				break
			}
		}
		s.Items = items

	case AddServerItem:
		items := make([]response.Item, 0, len(s.Items)+1)
		items = append(items, a.Item)
		items = append(items, s.Items...)
		s.Items = items

	case ReplaceServerItem:
		items := make([]response.Item, len(s.Items))
		copy(items, s.Items)
		for i, item := range items {
			if item.ID == a.Item.ID {
				items[i] = a.Item
				break
			}
		}
		s.Items = items

	case SetMigrationStatus:
		s.Migration = a.Status
	}

	if len(s.GuestItems) > 0 {
		s.ItemsCount = len(s.GuestItems)
	} else {
		s.ItemsCount = len(s.Items)
	}
	return s
}

func sameGuestContext(a, b guest.WishlistItem) bool {
	if a.ProductID != nil && b.ProductID != nil {
		return *a.ProductID == *b.ProductID
	}
	if a.ServiceID != nil && b.ServiceID != nil {
		return *a.ServiceID == *b.ServiceID
	}
	return false
}
