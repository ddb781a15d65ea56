// Package coupon validates discount codes and manages their lifecycle.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-svc/models"
	"storefront-svc/store"
)

var (
	ErrContactRequired   = errors.New("contact number is required to apply a coupon")
	ErrCouponInvalid     = errors.New("invalid or expired coupon")
	ErrCouponExpired     = errors.New("coupon has expired")
	ErrCouponAlreadyUsed = errors.New("coupon already used with this contact number")
	ErrInvalidPercentage = errors.New("discount percentage must be between 1 and 100")
	ErrCodeRequired      = errors.New("coupon code is required")
	ErrCouponExists      = errors.New("coupon code already exists")
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrNoActivePromotion = errors.New("no active promotion")
)

// NormalizeCode returns the canonical stored form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount is subtotal × percentage / 100, rounded to centavos.
func Discount(subtotal decimal.Decimal, percentage int) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromInt(int64(percentage))).Div(decimal.NewFromInt(100)).Round(2)
}

type Repository interface {
	Create(ctx context.Context, c models.Coupon) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	FindActive(ctx context.Context, code string) (*models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) (*models.Coupon, error)
	LatestActive(ctx context.Context, now time.Time) (*models.Coupon, error)
}

// UsageChecker answers whether a contact already has an order with a code.
type UsageChecker interface {
	CouponUsed(ctx context.Context, code, contact string) (bool, error)
}

type Service struct {
	coupons Repository
	usage   UsageChecker
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(coupons Repository, usage UsageChecker, logger *zap.Logger) *Service {
	return &Service{coupons: coupons, usage: usage, logger: logger, now: time.Now}
}

// Apply validates code for contact and computes the discount on subtotal.
func (s *Service) Apply(ctx context.Context, code string, subtotal decimal.Decimal, contact string) (*models.AppliedCoupon, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, ErrContactRequired
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrCodeRequired
	}

	c, err := s.coupons.FindActive(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCouponInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if c.Expired(s.now()) {
		return nil, ErrCouponExpired
	}

	used, err := s.usage.CouponUsed(ctx, code, contact)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrCouponAlreadyUsed
	}

	applied := &models.AppliedCoupon{
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		Discount:           Discount(subtotal, c.DiscountPercentage),
		Subtotal:           subtotal,
	}
	s.logger.Info("Coupon applied",
		zap.String("code", applied.Code),
		zap.String("discount", applied.Discount.StringFixed(2)))
	return applied, nil
}

func (s *Service) Create(ctx context.Context, req models.CreateCouponRequest) (*models.Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, ErrCodeRequired
	}
	if req.DiscountPercentage < 1 || req.DiscountPercentage > 100 {
		return nil, ErrInvalidPercentage
	}

	c, err := s.coupons.Create(ctx, models.Coupon{
		Code:               code,
		DiscountPercentage: req.DiscountPercentage,
		IsActive:           true,
		ValidUntil:         req.ValidUntil,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrCouponExists
	}
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	s.logger.Info("Coupon created", zap.String("code", c.Code), zap.Int("discount_percentage", c.DiscountPercentage))
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]models.Coupon, error) {
	return s.coupons.List(ctx)
}

func (s *Service) SetActive(ctx context.Context, code string, active bool) (*models.Coupon, error) {
	c, err := s.coupons.SetActive(ctx, NormalizeCode(code), active)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set coupon active: %w", err)
	}
	s.logger.Info("Coupon updated", zap.String("code", c.Code), zap.Bool("is_active", c.IsActive))
	return c, nil
}

// LatestPromo returns the newest usable coupon for the storefront banner.
func (s *Service) LatestPromo(ctx context.Context) (*models.Coupon, error) {
	c, err := s.coupons.LatestActive(ctx, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActivePromotion
	}
	return c, err
}
