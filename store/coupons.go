package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-svc/models"
)

const couponColumns = "code, discount_percentage, is_active, valid_until, created_at"

type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c          models.Coupon
		validUntil sql.NullTime
	)
	if err := row.Scan(&c.Code, &c.DiscountPercentage, &c.IsActive, &validUntil, &c.CreatedAt); err != nil {
		return nil, err
	}
	if validUntil.Valid {
		t := validUntil.Time
		c.ValidUntil = &t
	}
	return &c, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *CouponStore) Create(ctx context.Context, c models.Coupon) (*models.Coupon, error) {
	created, err := scanCoupon(s.db.QueryRowContext(ctx,
		`INSERT INTO coupons (code, discount_percentage, is_active, valid_until)
		VALUES ($1, $2, $3, $4) RETURNING `+couponColumns,
		c.Code, c.DiscountPercentage, c.IsActive, nullableTime(c.ValidUntil)))
	if err != nil {
		return nil, mapError(err)
	}
	return created, nil
}

func (s *CouponStore) List(ctx context.Context) ([]models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+couponColumns+" FROM coupons ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []models.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

// FindActive looks up an active coupon by its normalized code.
func (s *CouponStore) FindActive(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx,
		"SELECT "+couponColumns+" FROM coupons WHERE code = $1 AND is_active = TRUE", code))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *CouponStore) SetActive(ctx context.Context, code string, active bool) (*models.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx,
		"UPDATE coupons SET is_active = $1 WHERE code = $2 RETURNING "+couponColumns, active, code))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// LatestActive returns the newest active coupon that has not expired at now.
func (s *CouponStore) LatestActive(ctx context.Context, now time.Time) (*models.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons
		WHERE is_active = TRUE AND (valid_until IS NULL OR valid_until >= $1)
		ORDER BY created_at DESC LIMIT 1`, now))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}
