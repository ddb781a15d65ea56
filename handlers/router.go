package handlers

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"storefront-svc/middleware"
)

type Router struct {
	ServiceName string
	Logger      *zap.Logger
	Auth        *middleware.AdminAuth
	Products    *ProductHandler
	Carts       *CartHandler
	Checkout    *CheckoutHandler
	Orders      *OrderHandler
	Coupons     *CouponHandler
	Admin       *AdminHandler
}

// Engine builds the gin engine with every public and admin route.
func (r Router) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(r.ServiceName))
	router.Use(middleware.LoggerMiddleware(r.Logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	router.GET("/products", r.Products.GetProducts)
	router.GET("/products/categories", r.Products.GetCategories)
	router.GET("/products/:id", r.Products.GetProduct)

	router.GET("/cart", r.Carts.GetCart)
	router.DELETE("/cart", r.Carts.ClearCart)
	router.POST("/cart/items", r.Carts.AddItem)
	router.POST("/cart/items/:id/decrease", r.Carts.DecreaseItem)
	router.PUT("/cart/items/:id", r.Carts.UpdateItem)
	router.DELETE("/cart/items/:id", r.Carts.RemoveItem)
	router.POST("/cart/coupon", r.Carts.ApplyCoupon)

	router.POST("/checkout", r.Checkout.PlaceOrder)
	router.GET("/orders/:id", r.Orders.TrackOrder)
	router.GET("/promo", r.Coupons.GetPromo)

	router.GET(middleware.AdminLoginPath, r.Admin.LoginPage)
	router.POST(middleware.AdminLoginPath, r.Admin.Login)

	admin := router.Group("/admin")
	admin.Use(r.Auth.RequireAdmin())
	{
		admin.POST("/logout", r.Admin.Logout)

		admin.GET("/stats", r.Admin.GetStats)
		admin.GET("/stats/chart", r.Admin.GetChart)
		admin.GET("/stats/stream", r.Admin.StreamStats)

		admin.GET("/products", r.Products.GetProducts)
		admin.POST("/products", r.Products.CreateProduct)
		admin.PUT("/products/:id", r.Products.UpdateProduct)
		admin.DELETE("/products/:id", r.Products.DeleteProduct)

		admin.GET("/orders", r.Orders.ListOrders)
		admin.GET("/orders/:id/print", r.Orders.PrintOrder)
		admin.PUT("/orders/:id/status", r.Orders.UpdateOrderStatus)

		admin.GET("/coupons", r.Coupons.ListCoupons)
		admin.POST("/coupons", r.Coupons.CreateCoupon)
		admin.PUT("/coupons/:code/active", r.Coupons.SetCouponActive)
	}

	return router
}
