package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"storefront-svc/cart"
	"storefront-svc/checkout"
	"storefront-svc/circuitbreaker"
	"storefront-svc/coupon"
	"storefront-svc/middleware"
	"storefront-svc/models"
)

type CheckoutSubmitter interface {
	Submit(ctx context.Context, c *cart.Cart, customer checkout.Customer, observers ...checkout.Observer) (*checkout.Submission, error)
}

type CheckoutHandler struct {
	carts    *CartHandler
	workflow CheckoutSubmitter
	logger   *zap.Logger
}

func NewCheckoutHandler(carts *CartHandler, workflow CheckoutSubmitter, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, workflow: workflow, logger: logger}
}

// PlaceOrder submits the shopper's cart as a cash-on-delivery order.
func (h *CheckoutHandler) PlaceOrder(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "PlaceOrder")
	defer span.End()

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RecordCheckout("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc, ok := h.carts.OpenCart(c)
	if !ok {
		return
	}

	traceID := middleware.GetTraceID(ctx)
	observe := func(e checkout.Event) {
		h.logger.Debug("Checkout state",
			zap.String("trace_id", traceID),
			zap.String("cart_id", sc.ID()),
			zap.String("state", string(e.State)),
			zap.String("order_id", e.OrderID))
	}

	sub, err := h.workflow.Submit(ctx, sc, checkout.Customer{
		Name:    req.CustomerName,
		Address: req.CustomerAddress,
		Contact: req.CustomerContact,
	}, observe)
	if err != nil {
		h.failure(c, sub, err)
		return
	}

	middleware.RecordCheckout("success")
	c.JSON(http.StatusCreated, gin.H{
		"order_id": sub.OrderID,
		"order":    sub.Order,
		"subtotal": sub.Subtotal,
		"discount": sub.Discount,
		"total":    sub.Total,
	})
}

func (h *CheckoutHandler) failure(c *gin.Context, sub *checkout.Submission, err error) {
	body := gin.H{"error": err.Error()}
	var stepErr *checkout.StepError
	if errors.As(err, &stepErr) {
		body["error"] = stepErr.Err.Error()
		body["step"] = stepErr.Step
		if stepErr.OrderID != "" {
			body["order_id"] = stepErr.OrderID
			body["persisted"] = stepErr.Persisted
		}
	}

	var conflict *checkout.StockConflictError
	switch {
	case errors.As(err, &conflict):
		middleware.RecordCheckout("stock_conflict")
		body["product_id"] = conflict.ProductID
		body["remaining"] = conflict.Remaining
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, coupon.ErrCouponAlreadyUsed):
		middleware.RecordCheckout("coupon_used")
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrMissingCustomer):
		middleware.RecordCheckout("invalid")
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		middleware.RecordCheckout("unavailable")
		body["error"] = "Service temporarily unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		middleware.RecordCheckout("error")
		orderID := ""
		if sub != nil {
			orderID = sub.OrderID
		}
		h.logger.Error("Checkout failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("order_id", orderID),
			zap.Error(err))
		body["error"] = "Internal server error"
		c.JSON(http.StatusInternalServerError, body)
	}
}
