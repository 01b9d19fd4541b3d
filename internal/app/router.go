package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"paycore/internal/handler"
	"paycore/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TransactionHandler *handler.TransactionHandler
	SettlementHandler  *handler.SettlementHandler
	RefundHandler      *handler.RefundHandler
	DisputeHandler     *handler.DisputeHandler
	InvoiceHandler     *handler.InvoiceHandler
	RecurringHandler   *handler.RecurringHandler
	CustomerHandler    *handler.CustomerHandler
	// RedisClient backs response replay for Idempotency-Key. Nil disables it.
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	AllowedOrigins []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.NewRelicAttributes())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", deps.TransactionHandler.SubmitPayment)
			transactions.GET("", deps.TransactionHandler.ListTransactions)
			transactions.GET("/reference/:reference", deps.TransactionHandler.GetByReference)
			transactions.GET("/:id", deps.TransactionHandler.GetTransaction)
			transactions.POST("/:id/authorize", deps.TransactionHandler.Authorize)
			transactions.POST("/:id/capture", deps.TransactionHandler.Capture)
			transactions.POST("/:id/void", deps.TransactionHandler.Void)
			transactions.POST("/:id/cancel", deps.TransactionHandler.Cancel)
			transactions.GET("/:id/order-status", deps.TransactionHandler.OrderStatus)

			transactions.POST("/:id/settle", deps.SettlementHandler.Confirm)
			transactions.POST("/:id/settlement/failure", deps.SettlementHandler.ReportFailure)
			transactions.POST("/:id/settlement/retry", deps.SettlementHandler.Retry)
			transactions.GET("/:id/settlement/reconcile", deps.SettlementHandler.Reconcile)

			transactions.GET("/:id/refunds", deps.RefundHandler.ListRefunds)
			transactions.GET("/:id/disputes", deps.DisputeHandler.ListDisputes)
		}

		refunds := v1.Group("/refunds")
		{
			refunds.POST("", deps.RefundHandler.RequestRefund)
			refunds.GET("/:id", deps.RefundHandler.GetRefund)
			refunds.POST("/:id/approve", deps.RefundHandler.Approve)
			refunds.POST("/:id/complete", deps.RefundHandler.Complete)
			refunds.POST("/:id/cancel", deps.RefundHandler.Cancel)
		}

		disputes := v1.Group("/disputes")
		{
			disputes.POST("", deps.DisputeHandler.OpenDispute)
			disputes.GET("/:id", deps.DisputeHandler.GetDispute)
			disputes.POST("/:id/evidence", deps.DisputeHandler.SubmitEvidence)
			disputes.POST("/:id/resolve", deps.DisputeHandler.Resolve)
		}

		invoices := v1.Group("/invoices")
		{
			invoices.POST("", deps.InvoiceHandler.Register)
			invoices.GET("/:id", deps.InvoiceHandler.GetInvoice)
			invoices.POST("/:id/payments", deps.InvoiceHandler.RecordPayment)
		}
		v1.POST("/reconciliation/:invoiceId", deps.InvoiceHandler.Reconcile)

		recurring := v1.Group("/recurring-payments")
		{
			recurring.POST("", deps.RecurringHandler.Setup)
			recurring.GET("", deps.RecurringHandler.List)
			recurring.POST("/run-due", deps.RecurringHandler.RunDue)
			recurring.GET("/:id", deps.RecurringHandler.Get)
			recurring.POST("/:id/execute", deps.RecurringHandler.Execute)
			recurring.POST("/:id/cancel", deps.RecurringHandler.Cancel)
		}

		v1.GET("/customers/:id/summary", deps.CustomerHandler.Summary)
	}

	return router
}
