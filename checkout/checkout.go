// Package checkout turns a cart into a persisted order.
//
// A submission moves through a fixed sequence of states:
//
//	idle -> validating_stock -> [applying_coupon] -> creating_order ->
//	creating_lines -> decrementing_stock -> success
//
// Any step may move it to failed instead. The order header, its lines and the
// stock decrements are written in one transaction, so a failure after the
// header insert leaves nothing behind; the order id generated for that
// attempt is still reported, marked as not persisted.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront-svc/cart"
	"storefront-svc/coupon"
	"storefront-svc/models"
	"storefront-svc/store"
)

type State string

const (
	StateIdle              State = "idle"
	StateValidatingStock   State = "validating_stock"
	StateApplyingCoupon    State = "applying_coupon"
	StateCreatingOrder     State = "creating_order"
	StateCreatingLines     State = "creating_lines"
	StateDecrementingStock State = "decrementing_stock"
	StateSuccess           State = "success"
	StateFailed            State = "failed"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingCustomer = errors.New("name, address and contact number are required")
)

// StockConflictError reports a line whose quantity is no longer available.
type StockConflictError struct {
	ProductID   string
	ProductName string
	Requested   int
	Remaining   int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("not enough stock for %s: only %d left", e.ProductName, e.Remaining)
}

// StepError wraps the failure of one workflow step.
type StepError struct {
	Step      State
	OrderID   string
	Persisted bool
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout failed at %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Event is emitted on every state transition.
type Event struct {
	State   State
	OrderID string
	Err     error
}

type Observer func(Event)

type Customer struct {
	Name    string
	Address string
	Contact string
}

func (c Customer) normalized() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Address: strings.TrimSpace(c.Address),
		Contact: strings.TrimSpace(c.Contact),
	}
}

// Submission is the outcome of one checkout attempt.
type Submission struct {
	State      State
	OrderID    string
	Persisted  bool
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode *string
	Order      *models.Order
	Err        error
	History    []State
}

// StockReader returns the authoritative stock for a product.
type StockReader interface {
	Stock(ctx context.Context, productID string) (int, error)
}

// Placement is one transactional order write.
type Placement interface {
	CouponUsed(ctx context.Context, code, contact string) (bool, error)
	CreateHeader(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, items []models.OrderItem) error
	DecrementStock(ctx context.Context, productID string, qty int) (remaining int, ok bool, err error)
	Stock(ctx context.Context, productID string) (int, error)
	Commit() error
	Rollback() error
}

type OrderPlacer interface {
	BeginPlacement(ctx context.Context) (Placement, error)
}

// PlacerFunc adapts a function to OrderPlacer.
type PlacerFunc func(ctx context.Context) (Placement, error)

func (f PlacerFunc) BeginPlacement(ctx context.Context) (Placement, error) {
	return f(ctx)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

// Publishers fans an event out to every publisher in order.
type Publishers []EventPublisher

func (ps Publishers) Publish(ctx context.Context, event models.OrderEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Workflow struct {
	stock     StockReader
	placer    OrderPlacer
	publisher EventPublisher
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

func NewWorkflow(stock StockReader, placer OrderPlacer, publisher EventPublisher, logger *zap.Logger) *Workflow {
	return &Workflow{
		stock:     stock,
		placer:    placer,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

type run struct {
	sub       *Submission
	observers []Observer
}

func (r *run) enter(state State) {
	r.sub.State = state
	r.sub.History = append(r.sub.History, state)
	for _, o := range r.observers {
		o(Event{State: state, OrderID: r.sub.OrderID, Err: r.sub.Err})
	}
}

func (r *run) fail(step State, err error) (*Submission, error) {
	stepErr := &StepError{Step: step, OrderID: r.sub.OrderID, Persisted: false, Err: err}
	r.sub.Err = stepErr
	r.sub.Persisted = false
	r.enter(StateFailed)
	return r.sub, stepErr
}

// Submit runs one checkout attempt for c. The returned Submission is never
// nil; on failure its Err matches the returned error.
func (w *Workflow) Submit(ctx context.Context, c *cart.Cart, customer Customer, observers ...Observer) (*Submission, error) {
	ctx, span := otel.Tracer("storefront-service/checkout").Start(ctx, "Checkout.Submit")
	defer span.End()

	r := &run{sub: &Submission{}, observers: observers}
	r.enter(StateIdle)

	customer = customer.normalized()
	if customer.Name == "" || customer.Address == "" || customer.Contact == "" {
		return r.fail(StateIdle, ErrMissingCustomer)
	}

	lines := c.Lines()
	if len(lines) == 0 {
		return r.fail(StateIdle, ErrEmptyCart)
	}
	applied := c.Coupon()

	r.sub.Subtotal = decimal.Zero
	for _, l := range lines {
		r.sub.Subtotal = r.sub.Subtotal.Add(l.LineTotal())
	}
	r.sub.Discount = decimal.Zero
	if applied != nil {
		r.sub.Discount = applied.Discount
		code := applied.Code
		r.sub.CouponCode = &code
	}
	r.sub.Total = cart.Total(r.sub.Subtotal, r.sub.Discount)
	span.SetAttributes(
		attribute.Int("cart.lines", len(lines)),
		attribute.String("order.total", r.sub.Total.StringFixed(2)))

	// 1. stock re-validation, nothing written yet
	r.enter(StateValidatingStock)
	for _, l := range lines {
		stock, err := w.stock.Stock(ctx, l.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			stock, err = 0, nil
		}
		if err != nil {
			span.RecordError(err)
			return r.fail(StateValidatingStock, fmt.Errorf("read stock for %s: %w", l.Name, err))
		}
		if l.Quantity > stock {
			return r.fail(StateValidatingStock, &StockConflictError{
				ProductID: l.ProductID, ProductName: l.Name, Requested: l.Quantity, Remaining: stock,
			})
		}
	}

	p, err := w.placer.BeginPlacement(ctx)
	if err != nil {
		span.RecordError(err)
		return r.fail(StateCreatingOrder, err)
	}
	defer func() {
		if err := p.Rollback(); err != nil {
			w.logger.Warn("Failed to roll back order transaction", zap.Error(err))
		}
	}()

	// 2. coupon usage is re-checked inside the transaction
	if applied != nil {
		r.enter(StateApplyingCoupon)
		used, err := p.CouponUsed(ctx, applied.Code, customer.Contact)
		if err != nil {
			return r.fail(StateApplyingCoupon, err)
		}
		if used {
			return r.fail(StateApplyingCoupon, coupon.ErrCouponAlreadyUsed)
		}
	}

	// 3. header; the id is surfaced before lines and stock are written
	r.enter(StateCreatingOrder)
	order := &models.Order{
		ID:              w.newID(),
		CustomerName:    customer.Name,
		CustomerAddress: customer.Address,
		CustomerContact: customer.Contact,
		TotalAmount:     r.sub.Total,
		DiscountAmount:  r.sub.Discount,
		CouponCode:      r.sub.CouponCode,
		Status:          models.OrderStatusPending,
	}
	if err := p.CreateHeader(ctx, order); err != nil {
		return r.fail(StateCreatingOrder, err)
	}
	r.sub.OrderID = order.ID
	span.SetAttributes(attribute.String("order.id", order.ID))

	// 4. lines carry the cart's captured price
	r.enter(StateCreatingLines)
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		productID := l.ProductID
		items = append(items, models.OrderItem{
			OrderID:         order.ID,
			ProductID:       &productID,
			ProductName:     l.Name,
			ProductImage:    l.ImageURL,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.Price,
		})
	}
	if err := p.CreateLines(ctx, items); err != nil {
		return r.fail(StateCreatingLines, err)
	}
	order.Items = items

	// 5. conditional decrement; losing a race aborts the whole order
	r.enter(StateDecrementingStock)
	changes := make([]models.StockChange, 0, len(lines))
	for _, l := range lines {
		remaining, ok, err := p.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return r.fail(StateDecrementingStock, err)
		}
		if !ok {
			current, err := p.Stock(ctx, l.ProductID)
			if err != nil {
				w.logger.Warn("Failed to read stock after conflict", zap.String("product_id", l.ProductID), zap.Error(err))
			}
			return r.fail(StateDecrementingStock, &StockConflictError{
				ProductID: l.ProductID, ProductName: l.Name, Requested: l.Quantity, Remaining: current,
			})
		}
		changes = append(changes, models.StockChange{ProductID: l.ProductID, Quantity: l.Quantity, StockAfter: remaining})
	}

	if err := p.Commit(); err != nil {
		return r.fail(StateDecrementingStock, err)
	}
	r.sub.Persisted = true
	r.sub.Order = order

	// 6. the order stands even if the cart or the event bus misbehave
	if err := c.Clear(ctx); err != nil {
		w.logger.Error("Failed to clear cart after checkout",
			zap.String("order_id", order.ID), zap.String("cart_id", c.ID()), zap.Error(err))
	}
	if w.publisher != nil {
		event := models.OrderEvent{
			EventID:         uuid.NewString(),
			EventType:       models.EventOrderCreated,
			OrderID:         order.ID,
			Status:          order.Status,
			TotalAmount:     order.TotalAmount,
			CustomerName:    order.CustomerName,
			CustomerContact: order.CustomerContact,
			Items:           changes,
			OccurredAt:      w.now().UTC(),
		}
		if err := w.publisher.Publish(ctx, event); err != nil {
			w.logger.Error("Failed to publish order event", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	w.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(items)))
	r.enter(StateSuccess)
	return r.sub, nil
}
