package state

import (
	"github.com/google/uuid"

	"github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/guest"
)

// Action is the sealed set of cart state transitions.
type Action interface {
	isAction()
}

// SetCart replaces the cached cart wholesale with an authoritative result.
type SetCart struct {
	Cart response.Cart
}

// SetGuestItems replaces the guest mirror wholesale with what the Guest
// Store holds.
type SetGuestItems struct {
	Items []guest.CartItem
}

type AddGuestItem struct {
	Item guest.CartItem
}

// UpdateGuestQuantity sets the quantity of a guest line. Quantity <= 0
// removes the line.
type UpdateGuestQuantity struct {
	ID       uuid.UUID
	Quantity int
}

type RemoveGuestItem struct {
	ID uuid.UUID
}

type ClearGuestCart struct{}

// OptimisticUpdateItem tentatively updates an authenticated cart line ahead
// of server confirmation.
type OptimisticUpdateItem struct {
	ID       uuid.UUID
	Quantity int
}

type OptimisticRemoveItem struct {
	ID uuid.UUID
}

type SetMigrationStatus struct {
	Status MigrationStatus
}

func (SetCart) isAction()              {}
func (SetGuestItems) isAction()        {}
func (AddGuestItem) isAction()         {}
func (UpdateGuestQuantity) isAction()  {}
func (RemoveGuestItem) isAction()      {}
func (ClearGuestCart) isAction()       {}
func (OptimisticUpdateItem) isAction() {}
func (OptimisticRemoveItem) isAction() {}
func (SetMigrationStatus) isAction()   {}
