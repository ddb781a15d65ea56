package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code               string     `json:"code"`
	DiscountPercentage int        `json:"discount_percentage"`
	IsActive           bool       `json:"is_active"`
	ValidUntil         *time.Time `json:"valid_until"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Expired reports whether the coupon's validity window closed before now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ValidUntil != nil && c.ValidUntil.Before(now)
}

type CreateCouponRequest struct {
	Code               string     `json:"code" binding:"required"`
	DiscountPercentage int        `json:"discount_percentage" binding:"required"`
	ValidUntil         *time.Time `json:"valid_until"`
}

type ApplyCouponRequest struct {
	Code            string `json:"code" binding:"required"`
	CustomerContact string `json:"customer_contact"`
}

type SetCouponActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// AppliedCoupon is a coupon validated against a specific cart subtotal.
type AppliedCoupon struct {
	Code               string          `json:"code"`
	DiscountPercentage int             `json:"discount_percentage"`
	Discount           decimal.Decimal `json:"discount"`
	Subtotal           decimal.Decimal `json:"subtotal"`
}
