package guest

import (
	"time"

	"github.com/google/uuid"
)

const (
	WishlistSchemaVersion = 2

	DefaultExpiryHours = 72

	MaxCartItems     = 100
	MaxWishlistItems = 50
)

// Fixed storage keys. The file backend uses them as filenames, the redis
// backend as key names.
const (
	keyCart      = "copperbear.guest.cart"
	keyWishlist  = "copperbear.guest.wishlist"
	keyMigration = "copperbear.guest.migrated"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CartItem is a guest cart line. Exactly one of ProductID/ServiceID is set.
type CartItem struct {
	ID             uuid.UUID         `json:"id"`
	ProductID      *uuid.UUID        `json:"productId,omitempty"`
	ServiceID      *uuid.UUID        `json:"serviceId,omitempty"`
	Quantity       int               `json:"quantity"`
	AddedAt        time.Time         `json:"addedAt"`
	Customizations map[string]string `json:"customizations,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

type CartItemOptions struct {
	Quantity       int
	Customizations map[string]string
	Notes          string
}

type WishlistItem struct {
	ID        uuid.UUID  `json:"id"`
	ProductID *uuid.UUID `json:"productId,omitempty"`
	ServiceID *uuid.UUID `json:"serviceId,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Priority  Priority   `json:"priority"`
	Tags      []string   `json:"tags,omitempty"`
	AddedFrom string     `json:"addedFrom,omitempty"`
	AddedAt   time.Time  `json:"addedAt"`
}

type WishlistItemOptions struct {
	Notes     string
	Priority  Priority
	Tags      []string
	AddedFrom string
}

// WishlistData is the persisted guest wishlist payload. It expires as a
// whole when now > LastUpdated + ExpiryHours.
type WishlistData struct {
	Items         []WishlistItem `json:"items"`
	SchemaVersion int            `json:"schemaVersion"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	ExpiryHours   int            `json:"expiryHours"`
	SyncAttempts  int            `json:"syncAttempts"`
}

func (d WishlistData) Expired(now time.Time) bool {
	if d.LastUpdated.IsZero() {
		return false
	}
	hours := d.ExpiryHours
	if hours <= 0 {
		hours = DefaultExpiryHours
	}
	return now.After(d.LastUpdated.Add(time.Duration(hours) * time.Hour))
}

func emptyWishlist(now time.Time, expiryHours int) WishlistData {
	if expiryHours <= 0 {
		expiryHours = DefaultExpiryHours
	}
	return WishlistData{
		Items:         []WishlistItem{},
		SchemaVersion: WishlistSchemaVersion,
		LastUpdated:   now,
		ExpiryHours:   expiryHours,
	}
}

func sameContext(aProduct, aService, bProduct, bService *uuid.UUID) bool {
	if aProduct != nil && bProduct != nil {
		return *aProduct == *bProduct
	}
	if aService != nil && bService != nil {
		return *aService == *bService
	}
	return false
}
