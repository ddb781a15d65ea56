package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"storefront-svc/models"
)

const orderColumns = `id, customer_name, customer_address, customer_contact, total_amount,
	discount_amount, coupon_code, status, created_at, updated_at`

const orderItemColumns = "id, order_id, product_id, product_name, product_image, quantity, price_at_purchase"

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o      models.Order
		coupon sql.NullString
	)
	if err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerAddress, &o.CustomerContact,
		&o.TotalAmount, &o.DiscountAmount, &coupon, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if coupon.Valid {
		o.CouponCode = &coupon.String
	}
	o.Items = []models.OrderItem{}
	return &o, nil
}

func scanOrderItem(row rowScanner) (*models.OrderItem, error) {
	var (
		item      models.OrderItem
		productID sql.NullString
	)
	if err := row.Scan(&item.ID, &item.OrderID, &productID, &item.ProductName,
		&item.ProductImage, &item.Quantity, &item.PriceAtPurchase); err != nil {
		return nil, err
	}
	if productID.Valid {
		item.ProductID = &productID.String
	}
	return &item, nil
}

// Get loads one order with its lines.
func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	order, err := scanOrder(s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, mapError(err)
	}
	if err := s.attachItems(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns every order newest first, lines included.
func (s *OrderStore) List(ctx context.Context) ([]models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.List")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	span.SetAttributes(attribute.Int("orders.count", len(out)))
	return out, nil
}

func (s *OrderStore) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, *item)
		}
	}
	return rows.Err()
}

// UpdateStatus sets a new status and reports the status it replaced.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, "", ErrNotFound
	}

	var previous models.OrderStatus
	row := s.db.QueryRowContext(ctx,
		`WITH prev AS (SELECT id, status FROM orders WHERE id = $2 FOR UPDATE)
		UPDATE orders o SET status = $1, updated_at = NOW() FROM prev WHERE o.id = prev.id
		RETURNING prev.status, o.id, o.customer_name, o.customer_address, o.customer_contact,
			o.total_amount, o.discount_amount, o.coupon_code, o.status, o.created_at, o.updated_at`,
		status, id)

	var (
		o      models.Order
		coupon sql.NullString
	)
	if err := row.Scan(&previous, &o.ID, &o.CustomerName, &o.CustomerAddress, &o.CustomerContact,
		&o.TotalAmount, &o.DiscountAmount, &coupon, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, "", mapError(err)
	}
	if coupon.Valid {
		o.CouponCode = &coupon.String
	}
	o.Items = []models.OrderItem{}
	return &o, previous, nil
}

func couponUsed(ctx context.Context, q queryer, code, contact string) (bool, error) {
	var used bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM orders WHERE coupon_code = $1 AND customer_contact = $2)",
		code, contact).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check coupon usage: %w", err)
	}
	return used, nil
}

// CouponUsed reports whether contact already placed an order with code.
func (s *OrderStore) CouponUsed(ctx context.Context, code, contact string) (bool, error) {
	return couponUsed(ctx, s.db, code, contact)
}

// Summary returns the order count and revenue. Cancelled orders are counted
// but excluded from revenue.
func (s *OrderStore) Summary(ctx context.Context) (count int, revenue decimal.Decimal, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_amount) FILTER (WHERE status <> 'cancelled'), 0) FROM orders`).
		Scan(&count, &revenue)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("order summary: %w", err)
	}
	return count, revenue, nil
}

// MonthlyDelivered sums delivered order totals per calendar month (1-12) of year.
func (s *OrderStore) MonthlyDelivered(ctx context.Context, year int) (map[int]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT EXTRACT(MONTH FROM created_at)::int AS month, SUM(total_amount)
		FROM orders
		WHERE status = 'delivered' AND EXTRACT(YEAR FROM created_at)::int = $1
		GROUP BY month`, year)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	defer rows.Close()

	totals := make(map[int]decimal.Decimal)
	for rows.Next() {
		var (
			month int
			total decimal.Decimal
		)
		if err := rows.Scan(&month, &total); err != nil {
			return nil, fmt.Errorf("scan monthly revenue: %w", err)
		}
		totals[month] = total
	}
	return totals, rows.Err()
}

// Placement writes one order inside a single transaction. Nothing is visible
// to other readers until Commit.
type Placement struct {
	tx *sql.Tx
}

func (s *OrderStore) BeginPlacement(ctx context.Context) (*Placement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin order transaction: %w", err)
	}
	return &Placement{tx: tx}, nil
}

func (p *Placement) CouponUsed(ctx context.Context, code, contact string) (bool, error) {
	return couponUsed(ctx, p.tx, code, contact)
}

// CreateHeader inserts the order row. order.ID must already be set.
func (p *Placement) CreateHeader(ctx context.Context, order *models.Order) error {
	var coupon sql.NullString
	if order.CouponCode != nil {
		coupon = sql.NullString{String: *order.CouponCode, Valid: true}
	}
	err := p.tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, customer_name, customer_address, customer_contact,
			total_amount, discount_amount, coupon_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		order.ID, order.CustomerName, order.CustomerAddress, order.CustomerContact,
		order.TotalAmount, order.DiscountAmount, coupon, order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapError(err))
	}
	return nil
}

func (p *Placement) CreateLines(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		item := &items[i]
		err := p.tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, product_image, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.ProductImage, item.Quantity, item.PriceAtPurchase,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// DecrementStock takes qty units only if that many remain. ok is false when
// the row is missing or has fewer than qty units.
func (p *Placement) DecrementStock(ctx context.Context, productID string, qty int) (remaining int, ok bool, err error) {
	err = p.tx.QueryRowContext(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1 RETURNING stock`, qty, productID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, true, nil
}

// Stock reads stock inside the transaction, for conflict reporting.
func (p *Placement) Stock(ctx context.Context, productID string) (int, error) {
	var stock sql.NullInt64
	err := p.tx.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = $1", productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return int(stock.Int64), nil
}

func (p *Placement) Commit() error {
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

// Rollback is safe to call after Commit.
func (p *Placement) Rollback() error {
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
