package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customer_name"`
	CustomerAddress string          `json:"customer_address"`
	CustomerContact string          `json:"customer_contact"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	CouponCode      *string         `json:"coupon_code"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"order_items"`
}

type OrderItem struct {
	ID      int64  `json:"id"`
	OrderID string `json:"order_id"`
	// ProductID is nil once the product has been deleted from the catalog.
	ProductID       *string         `json:"product_id"`
	ProductName     string          `json:"product_name"`
	ProductImage    string          `json:"product_image"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// LineTotal is price at purchase times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CheckoutRequest struct {
	CustomerName    string `json:"customer_name" binding:"required"`
	CustomerAddress string `json:"customer_address" binding:"required"`
	CustomerContact string `json:"customer_contact" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
)

type OrderEvent struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"` // order_created, order_status_changed
	OrderID         string          `json:"order_id"`
	Status          OrderStatus     `json:"status"`
	PreviousStatus  OrderStatus     `json:"previous_status,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CustomerName    string          `json:"customer_name"`
	CustomerContact string          `json:"customer_contact"`
	Items           []StockChange   `json:"items,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// StockChange records the stock left for a product after an order took units.
type StockChange struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	StockAfter int    `json:"stock_after"`
}
