package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is a product snapshot captured when it was added to the cart.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ErrCartConflict is returned by a cart persister when the stored cart has
// moved past the version the caller loaded.
var ErrCartConflict = errors.New("cart was modified concurrently")

// CartSnapshot is the persisted form of a cart. Version counts saves since
// the cart was created or last cleared.
type CartSnapshot struct {
	ID        string         `json:"id"`
	Lines     []CartLine     `json:"lines"`
	Coupon    *AppliedCoupon `json:"coupon,omitempty"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartView struct {
	ID       string          `json:"id"`
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Coupon   *AppliedCoupon  `json:"coupon,omitempty"`
}
