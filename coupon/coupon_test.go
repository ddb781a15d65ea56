package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storefront-svc/models"
	"storefront-svc/store"
)

type fakeRepo struct {
	coupons map[string]models.Coupon
}

func (f *fakeRepo) Create(_ context.Context, c models.Coupon) (*models.Coupon, error) {
	if _, ok := f.coupons[c.Code]; ok {
		return nil, store.ErrDuplicate
	}
	f.coupons[c.Code] = c
	return &c, nil
}

func (f *fakeRepo) List(context.Context) ([]models.Coupon, error) {
	out := []models.Coupon{}
	for _, c := range f.coupons {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) FindActive(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok || !c.IsActive {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeRepo) SetActive(_ context.Context, code string, active bool) (*models.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.IsActive = active
	f.coupons[code] = c
	return &c, nil
}

func (f *fakeRepo) LatestActive(_ context.Context, now time.Time) (*models.Coupon, error) {
	var latest *models.Coupon
	for _, c := range f.coupons {
		if !c.IsActive || c.Expired(now) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			cp := c
			latest = &cp
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

type fakeUsage map[string]bool

func (f fakeUsage) CouponUsed(_ context.Context, code, contact string) (bool, error) {
	return f[code+"|"+contact], nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, usage fakeUsage, coupons ...models.Coupon) *Service {
	repo := &fakeRepo{coupons: map[string]models.Coupon{}}
	for _, c := range coupons {
		repo.coupons[c.Code] = c
	}
	s := NewService(repo, usage, zaptest.NewLogger(t))
	s.now = func() time.Time { return fixedNow }
	return s
}

func welcome10() models.Coupon {
	return models.Coupon{Code: "WELCOME10", DiscountPercentage: 10, IsActive: true}
}

func TestApply_Welcome10(t *testing.T) {
	s := newService(t, fakeUsage{}, welcome10())

	applied, err := s.Apply(context.Background(), " welcome10 ", decimal.NewFromInt(1000), "09171234567")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", applied.Code)
	assert.True(t, applied.Discount.Equal(decimal.NewFromInt(100)))
	assert.True(t, applied.Subtotal.Equal(decimal.NewFromInt(1000)))
}

func TestApply_Rejections(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	inactive := welcome10()
	inactive.Code = "OFF"
	inactive.IsActive = false
	expired := welcome10()
	expired.Code = "OLD"
	expired.ValidUntil = &past

	s := newService(t, fakeUsage{"WELCOME10|09171234567": true}, welcome10(), inactive, expired)
	ctx := context.Background()
	subtotal := decimal.NewFromInt(1000)

	tests := []struct {
		name    string
		code    string
		contact string
		want    error
	}{
		{"missing contact", "WELCOME10", "  ", ErrContactRequired},
		{"unknown code", "NOPE", "0917", ErrCouponInvalid},
		{"inactive code", "off", "0917", ErrCouponInvalid},
		{"expired code", "OLD", "0917", ErrCouponExpired},
		{"already used", "welcome10", "09171234567", ErrCouponAlreadyUsed},
		{"empty code", "", "0917", ErrCodeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Apply(ctx, tt.code, subtotal, tt.contact)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApply_NotYetExpired(t *testing.T) {
	future := fixedNow.Add(time.Hour)
	c := welcome10()
	c.ValidUntil = &future
	s := newService(t, fakeUsage{}, c)

	_, err := s.Apply(context.Background(), "WELCOME10", decimal.NewFromInt(10), "0917")
	assert.NoError(t, err)
}

func TestDiscount_Rounding(t *testing.T) {
	assert.Equal(t, "33.33", Discount(decimal.RequireFromString("333.33"), 10).StringFixed(2))
	assert.Equal(t, "1000.00", Discount(decimal.NewFromInt(1000), 100).StringFixed(2))
	assert.True(t, Discount(decimal.Zero, 50).IsZero())
}

func TestCreate(t *testing.T) {
	s := newService(t, fakeUsage{}, welcome10())
	ctx := context.Background()

	c, err := s.Create(ctx, models.CreateCouponRequest{Code: " summer25 ", DiscountPercentage: 25})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER25", c.Code)
	assert.True(t, c.IsActive)

	_, err = s.Create(ctx, models.CreateCouponRequest{Code: "welcome10", DiscountPercentage: 5})
	assert.ErrorIs(t, err, ErrCouponExists)

	_, err = s.Create(ctx, models.CreateCouponRequest{Code: "BIG", DiscountPercentage: 101})
	assert.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = s.Create(ctx, models.CreateCouponRequest{Code: "ZERO", DiscountPercentage: 0})
	assert.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestSetActiveAndLatestPromo(t *testing.T) {
	s := newService(t, fakeUsage{}, welcome10())
	ctx := context.Background()

	promo, err := s.LatestPromo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", promo.Code)

	_, err = s.SetActive(ctx, "welcome10", false)
	require.NoError(t, err)

	_, err = s.LatestPromo(ctx)
	assert.ErrorIs(t, err, ErrNoActivePromotion)

	_, err = s.Apply(ctx, "WELCOME10", decimal.NewFromInt(100), "0917")
	assert.ErrorIs(t, err, ErrCouponInvalid)

	_, err = s.SetActive(ctx, "MISSING", true)
	assert.ErrorIs(t, err, ErrCouponNotFound)
}
