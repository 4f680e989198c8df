package state

import (
	"github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/guest"
)

type MigrationStatus string

const (
	MigrationIdle    MigrationStatus = "idle"
	MigrationRunning MigrationStatus = "running"
	MigrationFailed  MigrationStatus = "failed"
	MigrationDone    MigrationStatus = "done"
)

// State is the cart view the agent serves to the UI. Cart holds the priced
// lines (authoritative when authenticated, preview-enriched when guest);
// GuestItems mirrors the Guest Store. TotalQuantity and ItemsCount are
// derived on every transition, never cached across actions.
type State struct {
	Cart          response.Cart
	GuestItems    []guest.CartItem
	Migration     MigrationStatus
	TotalQuantity int
	ItemsCount    int
}

func NewState() State {
	return State{
		Cart:      response.Cart{Items: []response.CartLine{}, Currency: Currency},
		Migration: MigrationIdle,
	}
}
