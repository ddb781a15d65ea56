// Package stats maintains the admin dashboard figures.
package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-svc/models"
)

type ProductCounter interface {
	Summary(ctx context.Context, threshold int) (total, lowStock int, err error)
}

type OrderTotals interface {
	Summary(ctx context.Context) (count int, revenue decimal.Decimal, err error)
	MonthlyDelivered(ctx context.Context, year int) (map[int]decimal.Decimal, error)
}

// seenCapacity bounds the number of event ids remembered for deduplication.
const seenCapacity = 4096

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Aggregator holds the dashboard figures. A full Recompute seeds it; order
// events and product changes then adjust it without rescanning.
type Aggregator struct {
	products  ProductCounter
	orders    OrderTotals
	threshold int
	logger    *zap.Logger

	mu     sync.RWMutex
	stats  models.DashboardStats
	loaded bool

	seen     map[string]struct{}
	seenRing []string
	seenNext int

	subMu       sync.Mutex
	subscribers map[chan models.DashboardStats]struct{}
}

func NewAggregator(products ProductCounter, orders OrderTotals, threshold int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		products:    products,
		orders:      orders,
		threshold:   threshold,
		logger:      logger,
		seen:        make(map[string]struct{}),
		seenRing:    make([]string, seenCapacity),
		subscribers: make(map[chan models.DashboardStats]struct{}),
	}
}

func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Recompute rescans products and orders and replaces the held figures.
func (a *Aggregator) Recompute(ctx context.Context) (models.DashboardStats, error) {
	totalProducts, lowStock, err := a.products.Summary(ctx, a.threshold)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("recompute stats: %w", err)
	}
	orderCount, revenue, err := a.orders.Summary(ctx)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("recompute stats: %w", err)
	}

	s := models.DashboardStats{
		TotalRevenue:  revenue,
		TotalOrders:   orderCount,
		TotalProducts: totalProducts,
		LowStockCount: lowStock,
	}
	a.mu.Lock()
	a.stats = s
	a.loaded = true
	a.mu.Unlock()

	a.broadcast(s)
	return s, nil
}

// Snapshot returns the held figures, computing them on first use.
func (a *Aggregator) Snapshot(ctx context.Context) (models.DashboardStats, error) {
	a.mu.RLock()
	s, loaded := a.stats, a.loaded
	a.mu.RUnlock()
	if loaded {
		return s, nil
	}
	return a.Recompute(ctx)
}

// Publish lets the aggregator sit behind an event publisher.
func (a *Aggregator) Publish(_ context.Context, event models.OrderEvent) error {
	a.Apply(event)
	return nil
}

// Apply folds one order event into the figures. Events seen before, by
// event id, are ignored.
func (a *Aggregator) Apply(event models.OrderEvent) {
	a.mu.Lock()
	if !a.loaded {
		a.mu.Unlock()
		return
	}
	if event.EventID != "" && !a.remember(event.EventID) {
		a.mu.Unlock()
		return
	}

	switch event.EventType {
	case models.EventOrderCreated:
		a.stats.TotalOrders++
		if event.Status != models.OrderStatusCancelled {
			a.stats.TotalRevenue = a.stats.TotalRevenue.Add(event.TotalAmount)
		}
		for _, item := range event.Items {
			before := item.StockAfter + item.Quantity
			if item.StockAfter < a.threshold && before >= a.threshold {
				a.stats.LowStockCount++
			}
		}
	case models.EventOrderStatusChanged:
		wasCancelled := event.PreviousStatus == models.OrderStatusCancelled
		isCancelled := event.Status == models.OrderStatusCancelled
		switch {
		case !wasCancelled && isCancelled:
			a.stats.TotalRevenue = a.stats.TotalRevenue.Sub(event.TotalAmount)
		case wasCancelled && !isCancelled:
			a.stats.TotalRevenue = a.stats.TotalRevenue.Add(event.TotalAmount)
		}
	default:
		a.mu.Unlock()
		a.logger.Warn("Ignoring unknown order event", zap.String("event_type", event.EventType))
		return
	}
	s := a.stats
	a.mu.Unlock()

	a.broadcast(s)
}

// remember records id and reports whether it was new. Caller holds mu.
func (a *Aggregator) remember(id string) bool {
	if _, ok := a.seen[id]; ok {
		return false
	}
	if old := a.seenRing[a.seenNext]; old != "" {
		delete(a.seen, old)
	}
	a.seenRing[a.seenNext] = id
	a.seenNext = (a.seenNext + 1) % len(a.seenRing)
	a.seen[id] = struct{}{}
	return true
}

// ProductChanged adjusts product and low-stock counts after an admin edit.
// before is nil for a created product, after is nil for a deleted one.
func (a *Aggregator) ProductChanged(before, after *models.Product) {
	a.mu.Lock()
	if !a.loaded {
		a.mu.Unlock()
		return
	}
	if before == nil && after != nil {
		a.stats.TotalProducts++
	}
	if before != nil && after == nil {
		a.stats.TotalProducts--
	}
	if before != nil && before.AvailableStock() < a.threshold {
		a.stats.LowStockCount--
	}
	if after != nil && after.AvailableStock() < a.threshold {
		a.stats.LowStockCount++
	}
	s := a.stats
	a.mu.Unlock()

	a.broadcast(s)
}

// Subscribe returns a channel receiving the figures after every change. Slow
// subscribers miss intermediate values rather than block updates.
func (a *Aggregator) Subscribe() (<-chan models.DashboardStats, func()) {
	ch := make(chan models.DashboardStats, 1)
	a.subMu.Lock()
	a.subscribers[ch] = struct{}{}
	a.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subscribers, ch)
			a.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (a *Aggregator) broadcast(s models.DashboardStats) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- s:
		default:
			// drop the stale value and deliver the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// MonthlyRevenue returns delivered order revenue for each month of year.
func (a *Aggregator) MonthlyRevenue(ctx context.Context, year int) ([]models.MonthlyRevenue, error) {
	totals, err := a.orders.MonthlyDelivered(ctx, year)
	if err != nil {
		return nil, err
	}
	out := make([]models.MonthlyRevenue, 12)
	for i, name := range monthNames {
		total, ok := totals[i+1]
		if !ok {
			total = decimal.Zero
		}
		out[i] = models.MonthlyRevenue{Name: name, Total: total}
	}
	return out, nil
}
