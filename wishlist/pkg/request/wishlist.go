package request

import (
	"github.com/google/uuid"
)

type AddWishlistItem struct {
	ProductID *uuid.UUID `validate:"required_without=ServiceID,excluded_with=ServiceID"    json:"productId,omitempty"`
	ServiceID *uuid.UUID `validate:"required_without=ProductID"                            json:"serviceId,omitempty"`
	Notes     string     `                                                                 json:"notes,omitempty"`
	Priority  string     `validate:"omitempty,oneof=low medium high"                       json:"priority,omitempty"`
	Tags      []string   `                                                                 json:"tags,omitempty"`
	AddedFrom string     `                                                                 json:"addedFrom,omitempty"`
}

// UpdateWishlistItem carries only the fields being changed.
type UpdateWishlistItem struct {
	Notes    *string   `                                                 json:"notes,omitempty"`
	Priority *string   `validate:"omitempty,oneof=low medium high"       json:"priority,omitempty"`
	Tags     *[]string `                                                 json:"tags,omitempty"`
}

type MoveToCart struct {
	Quantity           int  `validate:"required,gte=1" json:"quantity"`
	RemoveFromWishlist bool `                          json:"removeFromWishlist"`
}
