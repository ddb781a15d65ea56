package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"
)

type ProductRepository interface {
	List(ctx context.Context, f models.ProductFilter) ([]models.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error)
	Update(ctx context.Context, id string, req models.UpdateProductRequest) (*models.Product, error)
	Delete(ctx context.Context, id string) error
}

type ProductCache interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	Set(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
}

type ImageUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, imageURL string) error
}

// ProductObserver is told about catalog edits so dashboard counts stay current.
type ProductObserver interface {
	ProductChanged(before, after *models.Product)
}

type ProductHandler struct {
	products ProductRepository
	cache    ProductCache
	images   ImageUploader
	observer ProductObserver
	logger   *zap.Logger
}

// NewProductHandler wires the catalog endpoints. cache, images and observer
// may be nil.
func NewProductHandler(products ProductRepository, cache ProductCache, images ImageUploader, observer ProductObserver, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		cache:    cache,
		images:   images,
		observer: observer,
		logger:   logger,
	}
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	filter := models.ProductFilter{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Limit:    limit,
		Offset:   offset,
	}

	products, err := h.products.List(ctx, filter)
	if err != nil {
		internalError(c, h.logger, "Failed to fetch products", err)
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetCategories(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetCategories")
	defer span.End()

	categories, err := h.products.Categories(ctx)
	if err != nil {
		internalError(c, h.logger, "Failed to fetch categories", err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// Lookup reads a product through the cache.
func (h *ProductHandler) Lookup(ctx context.Context, id string) (*models.Product, error) {
	span := trace.SpanFromContext(ctx)
	if h.cache != nil {
		product, err := h.cache.Get(ctx, id)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			h.logger.Debug("Cache hit", zap.String("product_id", id))
			return product, nil
		}
		if !errors.Is(err, redis.Nil) {
			h.logger.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	product, err := h.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, product); err != nil {
			h.logger.Warn("Failed to cache product", zap.String("product_id", id), zap.Error(err))
		}
	}
	return product, nil
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	product, err := h.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to fetch product", err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// CreateProduct accepts JSON, or a multipart form with an optional "image"
// file.
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	var req models.CreateProductRequest
	multipart := strings.HasPrefix(c.ContentType(), "multipart/form-data")
	if multipart {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if raw := c.PostForm("price"); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
				return
			}
			req.Price = price
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	var uploaded string
	if multipart {
		if file, err := c.FormFile("image"); err == nil {
			if h.images == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "image uploads are not configured"})
				return
			}
			f, err := file.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
				return
			}
			url, err := h.images.Upload(ctx, file.Filename, f, file.Size, file.Header.Get("Content-Type"))
			f.Close()
			if err != nil {
				internalError(c, h.logger, "Failed to upload product image", err)
				return
			}
			req.ImageURL = url
			uploaded = url
		}
	}

	product, err := h.products.Create(ctx, req)
	if err != nil {
		if uploaded != "" {
			if rmErr := h.images.Remove(ctx, uploaded); rmErr != nil {
				h.logger.Warn("Failed to remove orphaned image", zap.String("image_url", uploaded), zap.Error(rmErr))
			}
		}
		internalError(c, h.logger, "Failed to create product", err)
		return
	}

	if h.observer != nil {
		h.observer.ProductChanged(nil, product)
	}

	span.SetAttributes(attribute.String("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("product_id", product.ID))
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}
	if req.Price != nil && req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	before, err := h.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to fetch product", err)
		return
	}

	product, err := h.products.Update(ctx, id, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to update product", err)
		return
	}

	h.invalidate(ctx, id)
	if h.observer != nil {
		h.observer.ProductChanged(before, product)
	}

	h.logger.Info("Product updated", zap.String("product_id", id))
	c.JSON(http.StatusOK, product)
}

// DeleteProduct removes the catalog row only. Past order lines keep their
// name and image snapshot, so the image object stays in the bucket.
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	before, err := h.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to fetch product", err)
		return
	}

	if err := h.products.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, "Failed to delete product", err)
		return
	}

	h.invalidate(ctx, id)
	if h.observer != nil {
		h.observer.ProductChanged(before, nil)
	}

	h.logger.Info("Product deleted", zap.String("product_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func (h *ProductHandler) invalidate(ctx context.Context, id string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, id); err != nil {
		h.logger.Warn("Failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}
}
