package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpcLib "google.golang.org/grpc"

	"storefront-svc/cache"
	"storefront-svc/checkout"
	"storefront-svc/circuitbreaker"
	"storefront-svc/config"
	"storefront-svc/coupon"
	"storefront-svc/database"
	"storefront-svc/grpc"
	"storefront-svc/handlers"
	"storefront-svc/kafka"
	"storefront-svc/middleware"
	"storefront-svc/stats"
	"storefront-svc/storage"
	"storefront-svc/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	newLogger := zap.NewProduction
	if cfg.IsDevelopment() {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.Tracing.JaegerEndpoint, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Initialize database
	db, err := database.InitDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := cache.InitRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()

	newBreaker := func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.NewCircuitBreaker(name, 5, 30*time.Second,
			circuitbreaker.WithFailurePredicate(store.IsBreakerFailure),
			circuitbreaker.WithStateChange(func(name string, from, to circuitbreaker.State) {
				middleware.RecordBreakerTransition(name, to.String())
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}),
		)
	}

	products := store.NewProductStore(db, newBreaker("products"))
	coupons := store.NewCouponStore(db)
	orders := store.NewOrderStore(db)
	productCache := cache.NewProductCache(rdb, cache.ProductTTL)
	carts := cache.NewCartStore(rdb, cfg.Redis.CartTTL)

	aggregator := stats.NewAggregator(products, orders, cfg.LowStockThreshold, logger)
	if _, err := aggregator.Recompute(ctx); err != nil {
		logger.Warn("Initial dashboard computation failed", zap.Error(err))
	}

	// Initialize Kafka producer
	syncProducer, err := kafka.InitProducer(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	producer := kafka.NewProducer(syncProducer, cfg.Kafka.Topic, logger)
	defer producer.Close()

	// Initialize Kafka consumer for the dashboard
	consumer, err := kafka.InitConsumer(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	go func(consumer sarama.Consumer) {
		if err := kafka.StartDashboardConsumer(ctx, consumer, cfg.Kafka.Topic, aggregator, logger); err != nil && ctx.Err() == nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}(consumer)

	notifier := kafka.NewNotifier(kafka.NewNotificationReader(cfg.Kafka), kafka.NewLogSender(logger), logger)
	go func() {
		if err := notifier.Run(ctx); err != nil {
			logger.Error("Notifier stopped", zap.Error(err))
		}
	}()

	// Stock for checkout comes from the inventory service when one is
	// configured, otherwise straight from the local catalog.
	var stockReader checkout.StockReader = products
	if cfg.InventoryGRPCAddr != "" {
		inventoryClient, err := grpc.InitInventoryClient(cfg.InventoryGRPCAddr, newBreaker("inventory"), logger)
		if err != nil {
			logger.Fatal("Failed to initialize inventory gRPC client", zap.Error(err))
		}
		defer inventoryClient.Close()
		stockReader = inventoryClient
	}

	var images handlers.ImageUploader
	if cfg.Storage.Enabled() {
		imageStore, err := storage.InitImageStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("Failed to initialize image storage", zap.Error(err))
		}
		images = imageStore
	}

	auth, err := middleware.NewAdminAuth(cfg.Admin.Password, cfg.Admin.SessionSecret, cfg.Admin.SessionTTL, !cfg.IsDevelopment())
	if err != nil {
		logger.Fatal("Failed to initialize admin auth", zap.Error(err))
	}

	// Every order event goes to Kafka, the local dashboard and the cache.
	publisher := checkout.Publishers{producer, aggregator, productCache}

	placer := checkout.PlacerFunc(func(ctx context.Context) (checkout.Placement, error) {
		p, err := orders.BeginPlacement(ctx)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	workflow := checkout.NewWorkflow(stockReader, placer, publisher, logger)
	couponService := coupon.NewService(coupons, orders, logger)

	productHandler := handlers.NewProductHandler(products, productCache, images, aggregator, logger)
	cartHandler := handlers.NewCartHandler(carts, productHandler, couponService, !cfg.IsDevelopment(), logger)

	router := handlers.Router{
		ServiceName: cfg.ServiceName,
		Logger:      logger,
		Auth:        auth,
		Products:    productHandler,
		Carts:       cartHandler,
		Checkout:    handlers.NewCheckoutHandler(cartHandler, workflow, logger),
		Orders:      handlers.NewOrderHandler(orders, publisher, logger),
		Coupons:     handlers.NewCouponHandler(couponService, logger),
		Admin:       handlers.NewAdminHandler(auth, aggregator, logger),
	}.Engine()

	// Start REST server
	restSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// cancelling ctx ends open stats streams
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Storefront REST API started", zap.String("port", cfg.HTTPPort))

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpcLib.NewServer(
		grpcLib.StatsHandler(otelgrpc.NewServerHandler()),
	)
	grpc.RegisterInventoryServer(grpcServer, grpc.NewInventoryServer(products, logger))

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Storefront gRPC server started", zap.String("port", cfg.GRPCPort))

	gracefulShutdown(logger, stop, restSrv, grpcServer)
}

func gracefulShutdown(logger *zap.Logger, stopWorkers context.CancelFunc, restSrv *http.Server, grpcServer *grpcLib.Server) {
	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	}

	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
