package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	// Stock is nil when the product has never had a stock count recorded.
	Stock     *int      `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailableStock treats an unknown stock count as zero.
func (p *Product) AvailableStock() int {
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}

type CreateProductRequest struct {
	Name        string          `json:"name" form:"name" binding:"required"`
	Price       decimal.Decimal `json:"price" form:"-"`
	Description string          `json:"description" form:"description"`
	ImageURL    string          `json:"image_url" form:"image_url"`
	Category    string          `json:"category" form:"category"`
	Stock       *int            `json:"stock" form:"stock" binding:"omitempty,gte=0"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	ImageURL    *string          `json:"image_url"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock" binding:"omitempty,gte=0"`
}

// Empty reports whether the request changes nothing.
func (r *UpdateProductRequest) Empty() bool {
	return r.Name == nil && r.Price == nil && r.Description == nil &&
		r.ImageURL == nil && r.Category == nil && r.Stock == nil
}

type ProductFilter struct {
	Query    string
	Category string
	Limit    int
	Offset   int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps paging values into the accepted range.
func (f *ProductFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
