package checkout

import (
	"context"
	"errors"
	"sync"

	"storefront-svc/models"
	"storefront-svc/store"
)

// memShop is an in-memory catalog and order book with all-or-nothing
// placements.
type memShop struct {
	mu     sync.Mutex
	stock  map[string]int
	orders map[string]*models.Order

	// failStep forces the named placement step to return an error.
	failStep State
	// onDecrement runs before each decrement, to simulate a concurrent buyer.
	onDecrement func(productID string)
}

func newMemShop() *memShop {
	return &memShop{stock: map[string]int{}, orders: map[string]*models.Order{}}
}

func (s *memShop) Stock(_ context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (s *memShop) setStock(productID string, n int) {
	s.mu.Lock()
	s.stock[productID] = n
	s.mu.Unlock()
}

func (s *memShop) BeginPlacement(context.Context) (Placement, error) {
	return &memPlacement{shop: s, decrements: map[string]int{}}, nil
}

func (s *memShop) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

var errInjected = errors.New("injected failure")

type memPlacement struct {
	shop       *memShop
	order      *models.Order
	items      []models.OrderItem
	decrements map[string]int
	done       bool
}

func (p *memPlacement) CouponUsed(_ context.Context, code, contact string) (bool, error) {
	if p.shop.failStep == StateApplyingCoupon {
		return false, errInjected
	}
	p.shop.mu.Lock()
	defer p.shop.mu.Unlock()
	for _, o := range p.shop.orders {
		if o.CouponCode != nil && *o.CouponCode == code && o.CustomerContact == contact {
			return true, nil
		}
	}
	return false, nil
}

func (p *memPlacement) CreateHeader(_ context.Context, order *models.Order) error {
	if p.shop.failStep == StateCreatingOrder {
		return errInjected
	}
	cp := *order
	p.order = &cp
	return nil
}

func (p *memPlacement) CreateLines(_ context.Context, items []models.OrderItem) error {
	if p.shop.failStep == StateCreatingLines {
		return errInjected
	}
	p.items = append([]models.OrderItem(nil), items...)
	return nil
}

func (p *memPlacement) DecrementStock(_ context.Context, productID string, qty int) (int, bool, error) {
	if p.shop.failStep == StateDecrementingStock {
		return 0, false, errInjected
	}
	if p.shop.onDecrement != nil {
		p.shop.onDecrement(productID)
	}
	p.shop.mu.Lock()
	defer p.shop.mu.Unlock()
	current, ok := p.shop.stock[productID]
	current -= p.decrements[productID]
	if !ok || current < qty {
		return 0, false, nil
	}
	p.decrements[productID] += qty
	return current - qty, true, nil
}

func (p *memPlacement) Stock(_ context.Context, productID string) (int, error) {
	p.shop.mu.Lock()
	defer p.shop.mu.Unlock()
	return p.shop.stock[productID] - p.decrements[productID], nil
}

func (p *memPlacement) Commit() error {
	p.shop.mu.Lock()
	defer p.shop.mu.Unlock()
	for id, n := range p.decrements {
		p.shop.stock[id] -= n
	}
	p.order.Items = p.items
	p.shop.orders[p.order.ID] = p.order
	p.done = true
	return nil
}

func (p *memPlacement) Rollback() error {
	p.done = true
	return nil
}

type recordingPublisher struct {
	events []models.OrderEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e models.OrderEvent) error {
	r.events = append(r.events, e)
	return r.err
}
