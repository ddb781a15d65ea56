// Package grpc exposes catalog stock over gRPC and provides the matching
// client used by checkout in split deployments.
package grpc

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"storefront-svc/models"
	"storefront-svc/store"
)

const (
	inventoryServiceName = "storefront.Inventory"
	getProductMethod     = "/" + inventoryServiceName + "/GetProduct"
	checkAvailMethod     = "/" + inventoryServiceName + "/CheckAvailability"
)

// InventoryService is the server side of storefront.Inventory. Messages are
// google.protobuf.Struct values so no generated stubs are needed.
type InventoryService interface {
	GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProduct", Handler: getProductHandler},
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/inventory",
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryService) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

func getProductHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryService).GetProduct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getProductMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryService).GetProduct(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryService).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkAvailMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryService).CheckAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type ProductReader interface {
	Get(ctx context.Context, id string) (*models.Product, error)
	Stock(ctx context.Context, id string) (int, error)
}

type InventoryServer struct {
	products ProductReader
	logger   *zap.Logger
}

func NewInventoryServer(products ProductReader, logger *zap.Logger) *InventoryServer {
	return &InventoryServer{products: products, logger: logger}
}

func (s *InventoryServer) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "GetProduct_gRPC")
	defer span.End()

	id := req.GetFields()["product_id"].GetStringValue()
	span.SetAttributes(attribute.String("product.id", id))

	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, s.toStatus(err, id)
	}

	return structpb.NewStruct(map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"price":     p.Price.StringFixed(2),
		"image_url": p.ImageURL,
		"category":  p.Category,
		"stock":     p.AvailableStock(),
	})
}

func (s *InventoryServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "CheckAvailability_gRPC")
	defer span.End()

	fields := req.GetFields()
	id := fields["product_id"].GetStringValue()
	quantity := int(fields["quantity"].GetNumberValue())

	stock, err := s.products.Stock(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return structpb.NewStruct(map[string]any{"available": false, "stock": 0})
		}
		return nil, s.toStatus(err, id)
	}

	return structpb.NewStruct(map[string]any{
		"available": stock >= quantity,
		"stock":     stock,
	})
}

func (s *InventoryServer) toStatus(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return status.Errorf(codes.NotFound, "product %s not found", id)
	}
	s.logger.Error("Inventory lookup failed", zap.String("product_id", id), zap.Error(err))
	return status.Error(codes.Unavailable, "inventory unavailable")
}

// compile-time check
var _ InventoryService = (*InventoryServer)(nil)

func invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
