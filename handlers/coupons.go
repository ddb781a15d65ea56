package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-svc/coupon"
	"storefront-svc/models"
)

type CouponManager interface {
	Create(ctx context.Context, req models.CreateCouponRequest) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) (*models.Coupon, error)
	LatestPromo(ctx context.Context) (*models.Coupon, error)
}

type CouponHandler struct {
	coupons CouponManager
	logger  *zap.Logger
}

func NewCouponHandler(coupons CouponManager, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, logger: logger}
}

func (h *CouponHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.coupons.List(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "Failed to fetch coupons", err)
		return
	}
	c.JSON(http.StatusOK, coupons)
}

func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req models.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.coupons.Create(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, created)
	case errors.Is(err, coupon.ErrCouponExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, coupon.ErrCodeRequired), errors.Is(err, coupon.ErrInvalidPercentage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		internalError(c, h.logger, "Failed to create coupon", err)
	}
}

func (h *CouponHandler) SetCouponActive(c *gin.Context) {
	var req models.SetCouponActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.coupons.SetActive(c.Request.Context(), c.Param("code"), *req.IsActive)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		internalError(c, h.logger, "Failed to update coupon", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// GetPromo returns the coupon advertised in the storefront banner.
func (h *CouponHandler) GetPromo(c *gin.Context) {
	promo, err := h.coupons.LatestPromo(c.Request.Context())
	if err != nil {
		if errors.Is(err, coupon.ErrNoActivePromotion) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		internalError(c, h.logger, "Failed to fetch promotion", err)
		return
	}
	c.JSON(http.StatusOK, promo)
}
