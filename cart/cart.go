// Package cart holds a shopper's in-progress selection. Stock checks compare
// against the stock value captured on each line, not the live catalog.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront-svc/models"
)

var (
	ErrSoldOut              = errors.New("product is sold out")
	ErrStockLimitReached    = errors.New("stock limit reached")
	ErrExceedsStock         = errors.New("quantity exceeds available stock")
	ErrItemNotInCart        = errors.New("item not in cart")
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied")
)

// Persister stores cart snapshots between requests. Save must refuse, with
// models.ErrCartConflict, a snapshot whose Version is no longer the stored
// one, and bump Version when it succeeds.
type Persister interface {
	Load(ctx context.Context, id string) (*models.CartSnapshot, error)
	Save(ctx context.Context, snap *models.CartSnapshot) error
	Delete(ctx context.Context, id string) error
}

// Cart is safe for concurrent use. Every mutation is persisted before it
// becomes visible; a failed save leaves the cart unchanged. When another
// handle on the same cart saved first, the mutation is replayed on the
// reloaded cart.
type Cart struct {
	mu        sync.Mutex
	snap      models.CartSnapshot
	persister Persister
	now       func() time.Time
}

func Open(ctx context.Context, id string, p Persister) (*Cart, error) {
	snap, err := p.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open cart %s: %w", id, err)
	}
	if snap.Lines == nil {
		snap.Lines = []models.CartLine{}
	}
	snap.ID = id
	return &Cart{snap: *snap, persister: p, now: time.Now}, nil
}

func (c *Cart) ID() string {
	return c.snap.ID
}

const maxSaveAttempts = 3

// update applies fn to a copy of the snapshot and persists it when fn
// reports a change.
func (c *Cart) update(ctx context.Context, fn func(next *models.CartSnapshot) (bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		next := c.snap
		next.Lines = make([]models.CartLine, len(c.snap.Lines))
		copy(next.Lines, c.snap.Lines)

		changed, err := fn(&next)
		if err != nil || !changed {
			return err
		}
		next.UpdatedAt = c.now().UTC()

		err = c.persister.Save(ctx, &next)
		if err == nil {
			c.snap = next
			return nil
		}
		if !errors.Is(err, models.ErrCartConflict) || attempt == maxSaveAttempts {
			return fmt.Errorf("save cart: %w", err)
		}

		fresh, err := c.persister.Load(ctx, c.snap.ID)
		if err != nil {
			return fmt.Errorf("reload cart %s: %w", c.snap.ID, err)
		}
		if fresh.Lines == nil {
			fresh.Lines = []models.CartLine{}
		}
		fresh.ID = c.snap.ID
		c.snap = *fresh
	}
}

// mutate applies fn to the lines. A nil result means nothing changed.
func (c *Cart) mutate(ctx context.Context, fn func(lines []models.CartLine) ([]models.CartLine, error)) error {
	return c.update(ctx, func(next *models.CartSnapshot) (bool, error) {
		lines, err := fn(next.Lines)
		if err != nil || lines == nil {
			return false, err
		}
		next.Lines = lines
		return true, nil
	})
}

func indexOf(lines []models.CartLine, productID string) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem adds one unit of product. A new line captures the product snapshot;
// an existing line refreshes its captured stock before the limit check.
func (c *Cart) AddItem(ctx context.Context, product *models.Product) error {
	return c.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		stock := product.AvailableStock()
		i := indexOf(lines, product.ID)
		if i < 0 {
			if stock < 1 {
				return nil, ErrSoldOut
			}
			return append(lines, models.CartLine{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				ImageURL:  product.ImageURL,
				Stock:     stock,
				Quantity:  1,
			}), nil
		}

		if lines[i].Quantity+1 > stock {
			return nil, ErrStockLimitReached
		}
		lines[i].Stock = stock
		lines[i].Quantity++
		return lines, nil
	})
}

// DecreaseItem never removes a line; at quantity 1 it does nothing.
func (c *Cart) DecreaseItem(ctx context.Context, productID string) error {
	return c.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return nil, ErrItemNotInCart
		}
		if lines[i].Quantity <= 1 {
			return nil, nil
		}
		lines[i].Quantity--
		return lines, nil
	})
}

func (c *Cart) RemoveItem(ctx context.Context, productID string) error {
	return c.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return nil, nil
		}
		return append(lines[:i], lines[i+1:]...), nil
	})
}

// UpdateQuantity sets the quantity exactly. Values below 1 are ignored.
func (c *Cart) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	return c.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return nil, ErrItemNotInCart
		}
		if quantity < 1 {
			return nil, nil
		}
		if quantity > lines[i].Stock {
			return nil, ErrExceedsStock
		}
		lines[i].Quantity = quantity
		return lines, nil
	})
}

// ApplyCoupon locks a validated coupon onto the cart. It cannot be replaced
// or removed until the cart is cleared.
func (c *Cart) ApplyCoupon(ctx context.Context, applied models.AppliedCoupon) error {
	return c.update(ctx, func(next *models.CartSnapshot) (bool, error) {
		if next.Coupon != nil {
			return false, ErrCouponAlreadyApplied
		}
		next.Coupon = &applied
		return true, nil
	})
}

// Clear empties the cart and drops any applied coupon.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.persister.Delete(ctx, c.snap.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	c.snap = models.CartSnapshot{ID: c.snap.ID, Lines: []models.CartLine{}, UpdatedAt: c.now().UTC()}
	return nil
}

// Lines returns a copy of the current lines.
func (c *Cart) Lines() []models.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]models.CartLine, len(c.snap.Lines))
	copy(lines, c.snap.Lines)
	return lines
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snap.Lines) == 0
}

func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return subtotal(c.snap.Lines)
}

func subtotal(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// Coupon returns the applied coupon, or nil.
func (c *Cart) Coupon() *models.AppliedCoupon {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.Coupon == nil {
		return nil
	}
	applied := *c.snap.Coupon
	return &applied
}

// View summarizes the cart. The discount is the amount locked when the
// coupon was applied.
func (c *Cart) View() models.CartView {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]models.CartLine, len(c.snap.Lines))
	copy(lines, c.snap.Lines)
	sub := subtotal(lines)
	discount := decimal.Zero
	var applied *models.AppliedCoupon
	if c.snap.Coupon != nil {
		cp := *c.snap.Coupon
		applied = &cp
		discount = cp.Discount
	}
	return models.CartView{
		ID:       c.snap.ID,
		Lines:    lines,
		Subtotal: sub,
		Discount: discount,
		Total:    Total(sub, discount),
		Coupon:   applied,
	}
}

// Total is subtotal minus discount, floored at zero.
func Total(subtotal, discount decimal.Decimal) decimal.Decimal {
	t := subtotal.Sub(discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}
