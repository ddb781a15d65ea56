package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"storefront-svc/circuitbreaker"
	"storefront-svc/models"
	"storefront-svc/store"
)

type fakeProducts struct {
	products map[string]*models.Product
	err      error
}

func (f *fakeProducts) Get(_ context.Context, id string) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) Stock(ctx context.Context, id string) (int, error) {
	p, err := f.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.AvailableStock(), nil
}

func startInventory(t *testing.T, products ProductReader) *InventoryClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterInventoryServer(srv, NewInventoryServer(products, zaptest.NewLogger(t)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	breaker := circuitbreaker.NewCircuitBreaker("inventory", 3, time.Minute,
		circuitbreaker.WithFailurePredicate(store.IsBreakerFailure))
	return NewInventoryClient(conn, breaker, zaptest.NewLogger(t))
}

func stockOf(n int) *int { return &n }

func TestInventory_GetProduct(t *testing.T) {
	client := startInventory(t, &fakeProducts{products: map[string]*models.Product{
		"p1": {ID: "p1", Name: "Adobo Mix", Price: decimal.RequireFromString("45.50"), Category: "Pantry", Stock: stockOf(7)},
	}})

	p, err := client.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if p.Name != "Adobo Mix" || !p.Price.Equal(decimal.RequireFromString("45.5")) || p.AvailableStock() != 7 {
		t.Errorf("Unexpected product %+v", p)
	}
}

func TestInventory_StockNotFound(t *testing.T) {
	client := startInventory(t, &fakeProducts{products: map[string]*models.Product{}})

	_, err := client.Stock(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected store.ErrNotFound, got %v", err)
	}
	// misses must not trip the breaker
	if state := client.circuitBreaker.GetState(); state != circuitbreaker.StateClosed {
		t.Errorf("Expected closed breaker, got %s", state)
	}
}

func TestInventory_CheckAvailability(t *testing.T) {
	client := startInventory(t, &fakeProducts{products: map[string]*models.Product{
		"p1": {ID: "p1", Name: "Rice", Stock: stockOf(2)},
	}})

	tests := []struct {
		name      string
		id        string
		quantity  int
		available bool
		stock     int
	}{
		{"enough", "p1", 2, true, 2},
		{"too many", "p1", 3, false, 2},
		{"unknown product", "nope", 1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available, stock, err := client.CheckAvailability(context.Background(), tt.id, tt.quantity)
			if err != nil {
				t.Fatalf("CheckAvailability() error = %v", err)
			}
			if available != tt.available || stock != tt.stock {
				t.Errorf("got (%v, %d), want (%v, %d)", available, stock, tt.available, tt.stock)
			}
		})
	}
}

func TestInventory_BackendFailureOpensBreaker(t *testing.T) {
	client := startInventory(t, &fakeProducts{err: errors.New("connection refused")})

	for i := 0; i < 3; i++ {
		if _, err := client.Stock(context.Background(), "p1"); err == nil {
			t.Fatal("Expected error from failing backend")
		}
	}
	if _, err := client.Stock(context.Background(), "p1"); !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}
