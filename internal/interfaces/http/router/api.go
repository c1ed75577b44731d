package router

import (
	"time"

	"github.com/erp/stockcore/internal/infrastructure/auth"
	"github.com/erp/stockcore/internal/infrastructure/logger"
	"github.com/erp/stockcore/internal/interfaces/http/handler"
	"github.com/erp/stockcore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Permissions checked when tokens are verified
const (
	PermStockRead      = "stock:read"
	PermStockWrite     = "stock:write"
	PermPackingWrite   = "packing:write"
	PermReconciliation = "stock:reconcile"
)

const healthPath = "/health"

// Handlers are the API's handlers; all are required except Reconciliation
type Handlers struct {
	Health         *handler.HealthHandler
	Products       *handler.ProductHandler
	Stock          *handler.StockHandler
	Packing        *handler.PackingHandler
	Reconciliation *handler.ReconciliationHandler
}

// APIConfig configures the middleware chain
type APIConfig struct {
	ServiceName    string
	Verifier       *auth.TokenVerifier // nil disables token checks
	TrustHeaders   bool
	TracingEnabled bool
	Profiling      bool
	Meter          metric.Meter
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewAPI builds the gin engine with middleware and every route mounted
func NewAPI(cfg APIConfig, h Handlers) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(cfg.Logger),
		logger.GinMiddleware(cfg.Logger),
		middleware.SecurityHeaders(),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.BodyLimit(cfg.MaxBodyBytes),
		middleware.Timeout(cfg.RequestTimeout),
	)

	engine.GET(healthPath, h.Health.Health)

	skip := []string{healthPath}
	scoped := []gin.HandlerFunc{}
	if cfg.Verifier != nil {
		scoped = append(scoped, middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Verifier:  cfg.Verifier,
			SkipPaths: skip,
			Logger:    cfg.Logger,
		}))
	}
	scoped = append(scoped,
		middleware.Tenant(middleware.TenantConfig{TrustHeaders: cfg.TrustHeaders || cfg.Verifier == nil, SkipPaths: skip}),
		middleware.TracingAttributeInjector(),
		middleware.Profiling(cfg.Profiling, skip...),
	)

	r := NewRouter(engine)
	r.Register(inventoryRoutes(h, scoped))
	r.Register(packingRoutes(h, scoped))
	r.Setup()
	return engine
}

func inventoryRoutes(h Handlers, scoped []gin.HandlerFunc) *DomainGroup {
	read := middleware.RequirePermission(PermStockRead)
	write := middleware.RequirePermission(PermStockWrite)

	g := NewDomainGroup("inventory", "/inventory").Use(scoped...)

	products := g.Group("products", "/products")
	products.POST("", write, h.Products.Create)
	products.GET("", read, h.Products.List)
	products.GET("/:id", read, h.Products.GetByID)
	products.PUT("/:id/loss-percentage", write, h.Products.SetLossPercentage)
	products.POST("/:id/receive", write, h.Stock.Receive)
	products.POST("/:id/adjust", write, h.Stock.Adjust)
	products.GET("/:id/virtual-stock", read, h.Stock.VirtualStock)
	products.GET("/:id/transactions", read, h.Stock.Transactions)
	products.GET("/:id/batches", read, h.Stock.Batches)

	g.POST("/transactions/:id/reverse", write, h.Stock.ReverseTransaction)

	if h.Reconciliation != nil {
		reconcile := middleware.RequirePermission(PermReconciliation)
		g.GET("/reconciliation", reconcile, h.Reconciliation.Run)
		g.GET("/reconciliation/last-run", reconcile, h.Reconciliation.LastRun)
	}
	return g
}

func packingRoutes(h Handlers, scoped []gin.HandlerFunc) *DomainGroup {
	read := middleware.RequirePermission(PermStockRead)
	write := middleware.RequirePermission(PermPackingWrite)

	g := NewDomainGroup("packing", "/packing").Use(scoped...)

	orders := g.Group("orders", "/orders")
	orders.POST("", write, h.Packing.Create)
	orders.GET("", read, h.Packing.List)
	orders.GET("/:id", read, h.Packing.GetByID)
	orders.POST("/:id/approve", write, h.Packing.Approve)
	orders.POST("/:id/start", write, h.Packing.StartPacking)
	orders.POST("/:id/ready", write, h.Packing.MarkReady)
	orders.POST("/:id/deliver", write, h.Packing.Deliver)
	orders.POST("/:id/cancel", write, h.Packing.Cancel)
	orders.PUT("/:id/items/:itemId/packed", write, h.Packing.SetPackedQuantity)
	orders.POST("/:id/consume", write, h.Packing.Consume)
	orders.POST("/:id/reverse", write, h.Packing.Reverse)
	return g
}
