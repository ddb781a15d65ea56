package grpc

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"storefront-svc/circuitbreaker"
	"storefront-svc/models"
	"storefront-svc/store"
)

// InventoryClient reads stock from a remote storefront.Inventory service.
// It satisfies checkout.StockReader.
type InventoryClient struct {
	conn           grpc.ClientConnInterface
	closer         func() error
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

func InitInventoryClient(address string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*InventoryClient, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inventory service: %w", err)
	}

	c := NewInventoryClient(conn, breaker, logger)
	c.closer = conn.Close
	return c, nil
}

func NewInventoryClient(conn grpc.ClientConnInterface, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *InventoryClient {
	return &InventoryClient{conn: conn, circuitBreaker: breaker, logger: logger}
}

func (ic *InventoryClient) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, int, error) {
	var (
		available bool
		stock     int
	)

	err := ic.circuitBreaker.Execute(ctx, func() error {
		resp, err := invoke(ctx, ic.conn, checkAvailMethod, map[string]any{
			"product_id": productID,
			"quantity":   quantity,
		})
		if err != nil {
			return fromStatus(err)
		}
		available = resp.GetFields()["available"].GetBoolValue()
		stock = int(resp.GetFields()["stock"].GetNumberValue())
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return available, stock, nil
}

// Stock returns the remote stock count; unknown products read as
// store.ErrNotFound.
func (ic *InventoryClient) Stock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := ic.circuitBreaker.Execute(ctx, func() error {
		resp, err := invoke(ctx, ic.conn, getProductMethod, map[string]any{"product_id": productID})
		if err != nil {
			return fromStatus(err)
		}
		stock = int(resp.GetFields()["stock"].GetNumberValue())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stock, nil
}

func (ic *InventoryClient) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product *models.Product

	err := ic.circuitBreaker.Execute(ctx, func() error {
		resp, err := invoke(ctx, ic.conn, getProductMethod, map[string]any{"product_id": productID})
		if err != nil {
			return fromStatus(err)
		}
		fields := resp.GetFields()
		price, err := decimal.NewFromString(fields["price"].GetStringValue())
		if err != nil {
			return fmt.Errorf("decode price: %w", err)
		}
		stock := int(fields["stock"].GetNumberValue())
		product = &models.Product{
			ID:       fields["id"].GetStringValue(),
			Name:     fields["name"].GetStringValue(),
			Price:    price,
			ImageURL: fields["image_url"].GetStringValue(),
			Category: fields["category"].GetStringValue(),
			Stock:    &stock,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (ic *InventoryClient) Close() error {
	if ic.closer == nil {
		return nil
	}
	return ic.closer()
}

func fromStatus(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", status.Convert(err).Message(), store.ErrNotFound)
	}
	return err
}
