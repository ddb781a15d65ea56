package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront-svc/cart"
	"storefront-svc/coupon"
	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"
)

const (
	CartHeader     = "X-Cart-ID"
	CartCookieName = "cart_id"
	cartCookieTTL  = 30 * 24 * time.Hour
	maxCartIDLen   = 64
)

type ProductLookup interface {
	Lookup(ctx context.Context, id string) (*models.Product, error)
}

type CouponApplier interface {
	Apply(ctx context.Context, code string, subtotal decimal.Decimal, contact string) (*models.AppliedCoupon, error)
}

type CartHandler struct {
	persister cart.Persister
	products  ProductLookup
	coupons   CouponApplier
	secure    bool
	logger    *zap.Logger
}

func NewCartHandler(persister cart.Persister, products ProductLookup, coupons CouponApplier, secure bool, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		persister: persister,
		products:  products,
		coupons:   coupons,
		secure:    secure,
		logger:    logger,
	}
}

// cartID reads the shopper's cart token, issuing a new one when absent.
func (h *CartHandler) cartID(c *gin.Context) string {
	id := c.GetHeader(CartHeader)
	if id == "" {
		id, _ = c.Cookie(CartCookieName)
	}
	if id == "" || len(id) > maxCartIDLen {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CartCookieName, id, int(cartCookieTTL.Seconds()), "/", "", h.secure, true)
	}
	c.Header(CartHeader, id)
	return id
}

func (h *CartHandler) open(c *gin.Context) (*cart.Cart, bool) {
	sc, err := cart.Open(c.Request.Context(), h.cartID(c), h.persister)
	if err != nil {
		internalError(c, h.logger, "Failed to load cart", err)
		return nil, false
	}
	return sc, true
}

// OpenCart loads the cart of the request; used by checkout.
func (h *CartHandler) OpenCart(c *gin.Context) (*cart.Cart, bool) {
	return h.open(c)
}

func (h *CartHandler) GetCart(c *gin.Context) {
	sc, ok := h.open(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) AddItem(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "AddCartItem")
	defer span.End()

	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("product.id", req.ProductID))

	product, err := h.products.Lookup(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to fetch product", err)
		return
	}

	sc, ok := h.open(c)
	if !ok {
		return
	}
	if err := sc.AddItem(ctx, product); err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) DecreaseItem(c *gin.Context) {
	sc, ok := h.open(c)
	if !ok {
		return
	}
	if err := sc.DecreaseItem(c.Request.Context(), c.Param("id")); err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc, ok := h.open(c)
	if !ok {
		return
	}
	if err := sc.UpdateQuantity(c.Request.Context(), c.Param("id"), req.Quantity); err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	sc, ok := h.open(c)
	if !ok {
		return
	}
	if err := sc.RemoveItem(c.Request.Context(), c.Param("id")); err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	sc, ok := h.open(c)
	if !ok {
		return
	}
	if err := sc.Clear(c.Request.Context()); err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.View())
}

// ApplyCoupon validates a code against the current subtotal and locks the
// resulting discount onto the cart.
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "ApplyCoupon")
	defer span.End()

	var req models.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc, ok := h.open(c)
	if !ok {
		return
	}
	if sc.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		return
	}
	if sc.Coupon() != nil {
		middleware.RecordCouponRejection("already_applied")
		c.JSON(http.StatusConflict, gin.H{"error": cart.ErrCouponAlreadyApplied.Error()})
		return
	}

	applied, err := h.coupons.Apply(ctx, req.Code, sc.Subtotal(), req.CustomerContact)
	if err != nil {
		h.couponError(c, err)
		return
	}
	if err := sc.ApplyCoupon(ctx, *applied); err != nil {
		h.cartError(c, err)
		return
	}

	h.logger.Info("Coupon locked onto cart",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("cart_id", sc.ID()),
		zap.String("code", applied.Code))
	c.JSON(http.StatusOK, sc.View())
}

func (h *CartHandler) cartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrSoldOut),
		errors.Is(err, cart.ErrStockLimitReached),
		errors.Is(err, cart.ErrExceedsStock),
		errors.Is(err, cart.ErrCouponAlreadyApplied):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrItemNotInCart):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		internalError(c, h.logger, "Failed to update cart", err)
	}
}

func (h *CartHandler) couponError(c *gin.Context, err error) {
	var reason string
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, coupon.ErrContactRequired):
		reason = "contact_required"
	case errors.Is(err, coupon.ErrCodeRequired):
		reason = "code_required"
	case errors.Is(err, coupon.ErrCouponInvalid):
		reason = "invalid"
	case errors.Is(err, coupon.ErrCouponExpired):
		reason = "expired"
	case errors.Is(err, coupon.ErrCouponAlreadyUsed):
		reason, status = "already_used", http.StatusConflict
	default:
		internalError(c, h.logger, "Failed to apply coupon", err)
		return
	}
	middleware.RecordCouponRejection(reason)
	c.JSON(status, gin.H{"error": err.Error()})
}
