package response

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a wishlist entry enriched server-side from catalog data. The
// agent never computes CurrentPrice or StockStatus itself.
type Item struct {
	ID            uuid.UUID        `json:"id"`
	ProductID     *uuid.UUID       `json:"productId,omitempty"`
	ServiceID     *uuid.UUID       `json:"serviceId,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Priority      string           `json:"priority"`
	Tags          []string         `json:"tags,omitempty"`
	AddedFrom     string           `json:"addedFrom,omitempty"`
	CurrentPrice  decimal.Decimal  `json:"currentPrice"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	IsOnSale      bool             `json:"isOnSale"`
	StockStatus   string           `json:"stockStatus"`
	CreatedAt     time.Time        `json:"createdAt"`
}
