package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"storefront-svc/circuitbreaker"
	"storefront-svc/models"
)

// UncategorizedLabel is reported for products with an empty category.
const UncategorizedLabel = "Others"

const productColumns = `id, name, price, description, image_url,
	COALESCE(NULLIF(category, ''), 'Others'), stock, created_at, updated_at`

type ProductStore struct {
	db      *sql.DB
	breaker *circuitbreaker.CircuitBreaker
}

func NewProductStore(db *sql.DB, breaker *circuitbreaker.CircuitBreaker) *ProductStore {
	return &ProductStore{db: db, breaker: breaker}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p     models.Product
		stock sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL,
		&p.Category, &stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Stock = intPtr(stock)
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	ctx, span := tracer.Start(ctx, "ProductStore.List")
	defer span.End()

	f.Normalize()
	query := "SELECT " + productColumns + " FROM products WHERE 1=1"
	args := []any{}
	argPos := 1

	if q := strings.TrimSpace(f.Query); q != "" {
		query += " AND name ILIKE $" + strconv.Itoa(argPos)
		args = append(args, "%"+q+"%")
		argPos++
	}
	if f.Category != "" {
		if strings.EqualFold(f.Category, UncategorizedLabel) {
			query += " AND category = ''"
		} else {
			query += " AND category = $" + strconv.Itoa(argPos)
			args = append(args, f.Category)
			argPos++
		}
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(argPos) + " OFFSET $" + strconv.Itoa(argPos+1)
	args = append(args, f.Limit, f.Offset)

	products := []models.Product{}
	err := s.breaker.Execute(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			products = append(products, *p)
		}
		return rows.Err()
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list products: %w", err)
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	return products, nil
}

func (s *ProductStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT COALESCE(NULLIF(category, ''), 'Others') AS c FROM products ORDER BY c`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *ProductStore) Get(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "ProductStore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var product *models.Product
	err := s.breaker.Execute(ctx, func() error {
		var err error
		product, err = scanProduct(s.db.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE id = $1", id))
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

// Stock reads the current stock count straight from the database.
func (s *ProductStore) Stock(ctx context.Context, id string) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, ErrNotFound
	}
	var stock sql.NullInt64
	err := s.breaker.Execute(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = $1", id).Scan(&stock)
	})
	if err != nil {
		return 0, mapError(err)
	}
	return int(stock.Int64), nil
}

func (s *ProductStore) Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "ProductStore.Create")
	defer span.End()

	product, err := scanProduct(s.db.QueryRowContext(ctx,
		`INSERT INTO products (id, name, price, description, image_url, category, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+productColumns,
		uuid.NewString(), req.Name, req.Price, req.Description, req.ImageURL,
		strings.TrimSpace(req.Category), nullableInt(req.Stock)))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert product: %w", mapError(err))
	}
	return product, nil
}

func (s *ProductStore) Update(ctx context.Context, id string, req models.UpdateProductRequest) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "ProductStore.Update")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	// Build update query dynamically
	query := "UPDATE products SET updated_at = NOW()"
	args := []any{}
	argPos := 1

	set := func(column string, value any) {
		query += ", " + column + " = $" + strconv.Itoa(argPos)
		args = append(args, value)
		argPos++
	}
	if req.Name != nil {
		set("name", *req.Name)
	}
	if req.Price != nil {
		set("price", *req.Price)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.ImageURL != nil {
		set("image_url", *req.ImageURL)
	}
	if req.Category != nil {
		set("category", strings.TrimSpace(*req.Category))
	}
	if req.Stock != nil {
		set("stock", *req.Stock)
	}

	query += " WHERE id = $" + strconv.Itoa(argPos) + " RETURNING " + productColumns
	args = append(args, id)

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Summary counts catalog rows and rows whose stock is below the low-stock
// threshold.
// Unknown stock counts as zero.
func (s *ProductStore) Summary(ctx context.Context, threshold int) (total, lowStock int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE COALESCE(stock, 0) < $1) FROM products`,
		threshold).Scan(&total, &lowStock)
	if err != nil {
		return 0, 0, fmt.Errorf("product summary: %w", err)
	}
	return total, lowStock, nil
}
