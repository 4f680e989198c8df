package request

import (
	"github.com/google/uuid"
)

type AddCartItem struct {
	ProductID      *uuid.UUID        `validate:"required_without=ServiceID,excluded_with=ServiceID" json:"productId,omitempty"`
	ServiceID      *uuid.UUID        `validate:"required_without=ProductID"                         json:"serviceId,omitempty"`
	Quantity       int               `validate:"required,gte=1"                                     json:"quantity"`
	Customizations map[string]string `                                                              json:"customizations,omitempty"`
	Notes          string            `                                                              json:"notes,omitempty"`
}

type UpdateCartItemQuantity struct {
	Quantity int `validate:"required,gte=1" json:"quantity"`
}

type SignIn struct {
	Token string `validate:"required" json:"token"`
}
