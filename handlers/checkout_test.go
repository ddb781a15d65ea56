package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"storefront-svc/cart"
	"storefront-svc/checkout"
	"storefront-svc/coupon"
	"storefront-svc/models"
)

type submitFunc func(ctx context.Context, c *cart.Cart, customer checkout.Customer) (*checkout.Submission, error)

func (f submitFunc) Submit(ctx context.Context, c *cart.Cart, customer checkout.Customer, _ ...checkout.Observer) (*checkout.Submission, error) {
	return f(ctx, c, customer)
}

func failedAt(step checkout.State, orderID string, err error) (*checkout.Submission, error) {
	stepErr := &checkout.StepError{Step: step, OrderID: orderID, Err: err}
	return &checkout.Submission{State: checkout.StateFailed, OrderID: orderID, Err: stepErr}, stepErr
}

func setupCheckoutTest(t *testing.T, submit submitFunc) *gin.Engine {
	carts := NewCartHandler(cart.NewMemoryPersister(), lookupMap{}, applierFunc(tenPercent), false, zaptest.NewLogger(t))
	handler := NewCheckoutHandler(carts, submit, zaptest.NewLogger(t))

	router := gin.New()
	router.POST("/checkout", handler.PlaceOrder)
	return router
}

var customerBody = map[string]string{
	"customer_name":    "Juan Dela Cruz",
	"customer_address": "Quezon City",
	"customer_contact": "09171234567",
}

func TestCheckoutHandler_Success(t *testing.T) {
	var got checkout.Customer
	router := setupCheckoutTest(t, func(_ context.Context, c *cart.Cart, customer checkout.Customer) (*checkout.Submission, error) {
		got = customer
		if c.ID() != "cart-123" {
			t.Errorf("Expected cart-123, got %s", c.ID())
		}
		return &checkout.Submission{
			State:     checkout.StateSuccess,
			OrderID:   testOrderID,
			Persisted: true,
			Subtotal:  decimal.NewFromInt(300),
			Discount:  decimal.NewFromInt(30),
			Total:     decimal.NewFromInt(270),
			Order:     &models.Order{ID: testOrderID, Status: models.OrderStatusPending},
		}, nil
	})

	w := performRequest(router, "POST", "/checkout", customerBody, shopper)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var body struct {
		OrderID string          `json:"order_id"`
		Total   decimal.Decimal `json:"total"`
	}
	decodeBody(t, w, &body)
	if body.OrderID != testOrderID || !body.Total.Equal(decimal.NewFromInt(270)) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
	if got.Contact != "09171234567" {
		t.Errorf("Expected customer to be passed through, got %+v", got)
	}
}

func TestCheckoutHandler_MissingFields(t *testing.T) {
	router := setupCheckoutTest(t, func(context.Context, *cart.Cart, checkout.Customer) (*checkout.Submission, error) {
		t.Error("Submit should not be called")
		return nil, nil
	})

	w := performRequest(router, "POST", "/checkout", map[string]string{"customer_name": "Juan"}, shopper)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCheckoutHandler_Failures(t *testing.T) {
	tests := []struct {
		name     string
		step     checkout.State
		orderID  string
		err      error
		want     int
		contains string
	}{
		{"empty cart", checkout.StateIdle, "", checkout.ErrEmptyCart, http.StatusBadRequest, "cart is empty"},
		{"stock conflict", checkout.StateValidatingStock, "",
			&checkout.StockConflictError{ProductID: "p1", ProductName: "Mango Jam", Requested: 3, Remaining: 1},
			http.StatusConflict, "only 1 left"},
		{"coupon used", checkout.StateApplyingCoupon, "", coupon.ErrCouponAlreadyUsed, http.StatusConflict, "already used"},
		{"lines failed", checkout.StateCreatingLines, testOrderID, errors.New("disk full"), http.StatusInternalServerError, testOrderID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupCheckoutTest(t, func(context.Context, *cart.Cart, checkout.Customer) (*checkout.Submission, error) {
				return failedAt(tt.step, tt.orderID, tt.err)
			})

			w := performRequest(router, "POST", "/checkout", customerBody, shopper)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
			if !contains(w.Body.String(), tt.contains) {
				t.Errorf("Expected body to mention %q, got %s", tt.contains, w.Body.String())
			}
		})
	}
}

func TestCheckoutHandler_RolledBackOrderIsNotPersisted(t *testing.T) {
	router := setupCheckoutTest(t, func(context.Context, *cart.Cart, checkout.Customer) (*checkout.Submission, error) {
		return failedAt(checkout.StateDecrementingStock, testOrderID,
			&checkout.StockConflictError{ProductID: "p1", ProductName: "Mango Jam", Requested: 2, Remaining: 0})
	})

	w := performRequest(router, "POST", "/checkout", customerBody, shopper)

	var body struct {
		OrderID   string `json:"order_id"`
		Persisted *bool  `json:"persisted"`
		Step      string `json:"step"`
	}
	decodeBody(t, w, &body)
	if body.OrderID != testOrderID || body.Persisted == nil || *body.Persisted {
		t.Errorf("Expected unpersisted order id in body, got %s", w.Body.String())
	}
	if body.Step != string(checkout.StateDecrementingStock) {
		t.Errorf("Expected failing step, got %q", body.Step)
	}
}
