package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storefront-svc/circuitbreaker"
	"storefront-svc/models"
	"storefront-svc/store"
)

const (
	testProductID = "6f1c2a7e-6c3b-4f43-9d43-7f0a3f0b8a11"
	testOrderID   = "0b9a7d9e-22d1-4e39-b1f8-4a8e77f3e2c5"
)

var productCols = []string{"id", "name", "price", "description", "image_url", "category", "stock", "created_at", "updated_at"}

var orderCols = []string{"id", "customer_name", "customer_address", "customer_contact", "total_amount",
	"discount_amount", "coupon_code", "status", "created_at", "updated_at"}

var orderItemCols = []string{"id", "order_id", "product_id", "product_name", "product_image", "quantity", "price_at_purchase"}

func init() {
	gin.SetMode(gin.TestMode)
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestBreaker() *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker("test", 5, 30*time.Second,
		circuitbreaker.WithFailurePredicate(store.IsBreakerFailure))
}

func performRequest(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
}

// mapCache is an in-memory ProductCache.
type mapCache struct {
	mu    sync.Mutex
	items map[string]models.Product
	sets  int
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]models.Product{}}
}

func (m *mapCache) Get(_ context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, redis.Nil
	}
	return &p, nil
}

func (m *mapCache) Set(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = *p
	m.sets++
	return nil
}

func (m *mapCache) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func intRef(n int) *int { return &n }

func errNoRows() error { return sql.ErrNoRows }

func contains(s, sub string) bool { return strings.Contains(s, sub) }
