package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront-svc/checkout"
	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"
)

type OrderRepository interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, models.OrderStatus, error)
}

type OrderHandler struct {
	orders    OrderRepository
	publisher checkout.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderHandler(orders OrderRepository, publisher checkout.EventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, publisher: publisher, logger: logger, now: time.Now}
}

// TrackOrder is public: the order id doubles as the tracking code.
func (h *OrderHandler) TrackOrder(c *gin.Context) {
	h.getOrder(c, "TrackOrder")
}

// PrintOrder returns the packing slip data for an order.
func (h *OrderHandler) PrintOrder(c *gin.Context) {
	h.getOrder(c, "PrintOrder")
}

func (h *OrderHandler) getOrder(c *gin.Context, spanName string) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), spanName)
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("order.id", id))

	order, err := h.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		internalError(c, h.logger, "Failed to fetch order", err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "ListOrders")
	defer span.End()

	orders, err := h.orders.List(ctx)
	if err != nil {
		internalError(c, h.logger, "Failed to fetch orders", err)
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus moves an order to any status in the enumeration.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("order.id", id))

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	order, previous, err := h.orders.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		internalError(c, h.logger, "Failed to update order status", err)
		return
	}

	middleware.RecordOrderStatusChange(string(order.Status))

	if h.publisher != nil && previous != order.Status {
		event := models.OrderEvent{
			EventID:         uuid.NewString(),
			EventType:       models.EventOrderStatusChanged,
			OrderID:         order.ID,
			Status:          order.Status,
			PreviousStatus:  previous,
			TotalAmount:     order.TotalAmount,
			CustomerName:    order.CustomerName,
			CustomerContact: order.CustomerContact,
			OccurredAt:      h.now().UTC(),
		}
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Error("Failed to publish status change",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	h.logger.Info("Order status updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)))
	c.JSON(http.StatusOK, order)
}
