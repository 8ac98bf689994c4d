package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/middlewares"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("millbooks-backend")

// PubSubMessage is the push delivery envelope. Message.Data is base64 in the
// raw JSON; encoding/json decodes it into the byte slice.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func main() {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	if os.Getenv("GO_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(customErrorLogger())

	// Liveness probe stays cheap and always answers.
	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// All other routes return 503 until the DB connection is established.
	// The server starts listening before connecting so Cloud Run sees the
	// port open quickly.
	r.Use(func(c *gin.Context) {
		if config.GetDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "NOT_READY", "message": "service is starting"}})
			return
		}
		c.Next()
	})

	r.Use(func(c *gin.Context) {
		spanCtx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(spanCtx)
		c.Next()
	})

	r.Use(corsMiddleware())
	if os.Getenv("RATE_LIMIT_ENABLED") == "true" {
		r.Use(rateLimiter())
	}
	r.Use(middlewares.AuthMiddleware())

	registerRoutes(r)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if os.Getenv("SKIP_MIGRATIONS") != "true" {
		models.MigrateTable()
	}

	// Balance and stock updates rely on row locks plus atomic column
	// arithmetic. READ COMMITTED avoids gap-lock deadlocks under MySQL.
	go func() {
		for attempt := 1; attempt <= 5; attempt++ {
			err := config.GetDB().Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
			if err == nil {
				return
			}
			logger.Warnf("failed to set isolation level (attempt=%d): %v", attempt, err)
			time.Sleep(time.Second * time.Duration(attempt))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		logger.Fatalf("http server error: %v", err)
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, draining")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Errorf("redis close: %v", err)
		}
	}
	logger.Info("server stopped")
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/login", loginHandler)
	r.POST("/pubsub", pubsubPushHandler)

	admin := r.Group("/mills", middlewares.RequireAuth(), middlewares.RequireAdmin())
	admin.POST("", createMillHandler)
	admin.GET("", listMillsHandler)

	mill := r.Group("/mills/:millId", middlewares.RequireAuth(), middlewares.RequireMillAccess())
	mill.GET("", getMillHandler)
	mill.PUT("", updateMillHandler)
	mill.PUT("/settings", upsertMillSettingHandler)
	mill.POST("/users", middlewares.RequireAdmin(), createUserHandler)

	mill.POST("/parties", createPartyHandler)
	mill.GET("/parties", listPartiesHandler)
	mill.GET("/parties/:id", getPartyHandler)
	mill.PUT("/parties/:id", updatePartyHandler)
	mill.DELETE("/parties/:id", deletePartyHandler)

	mill.POST("/brokers", createBrokerHandler)
	mill.GET("/brokers", listBrokersHandler)
	mill.GET("/brokers/:id", getBrokerHandler)
	mill.PUT("/brokers/:id", updateBrokerHandler)
	mill.DELETE("/brokers/:id", deleteBrokerHandler)

	mill.POST("/purchases", createPurchaseHandler)
	mill.GET("/purchases", listPurchasesHandler)
	mill.GET("/purchases/:id", getPurchaseHandler)
	mill.PUT("/purchases/:id", updatePurchaseHandler)
	mill.DELETE("/purchases/:id", deletePurchaseHandler)
	mill.POST("/purchases/:id/payments", recordPurchasePaymentHandler)

	mill.POST("/sales", createSaleHandler)
	mill.GET("/sales", listSalesHandler)
	mill.GET("/sales/:id", getSaleHandler)
	mill.PUT("/sales/:id", updateSaleHandler)
	mill.DELETE("/sales/:id", deleteSaleHandler)
	mill.POST("/sales/:id/payments", recordSalePaymentHandler)

	mill.GET("/stocks", listStocksHandler)
	mill.POST("/stocks", initializeStockHandler)
	mill.POST("/stocks/adjust", adjustStockHandler)
	mill.PUT("/stocks/:id/threshold", updateThresholdHandler)

	mill.POST("/transfers", createTransferHandler)
	mill.GET("/transfers", listTransfersHandler)
	mill.GET("/transfers/:id", getTransferHandler)
	mill.DELETE("/transfers/:id", deleteTransferHandler)

	reports := mill.Group("/reports")
	reports.GET("/stock-summary", stockSummaryHandler)
	reports.GET("/stock-summary/export", exportStockReportHandler)
	reports.GET("/low-stock-alerts", lowStockAlertsHandler)
	reports.GET("/party-balances", partyBalancesHandler)
	reports.GET("/broker-commissions", brokerCommissionsHandler)
	reports.GET("/reconciliation", reconciliationHandler)
}

// pubsubPushHandler acknowledges malformed deliveries with 204 so the
// subscription does not retry garbage forever. Processing failures return
// 500 so the message is redelivered.
func pubsubPushHandler(c *gin.Context) {
	logger := config.GetLogger()

	var msg PubSubMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		logger.Warnf("pubsub push: malformed envelope: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	var event config.MillEvent
	if err := json.Unmarshal(msg.Message.Data, &event); err != nil {
		logger.Warnf("pubsub push: undecodable event payload (messageId=%s): %v", msg.Message.ID, err)
		c.Status(http.StatusNoContent)
		return
	}

	if event.MillId == "" || event.Event == "" {
		logger.Warnf("pubsub push: event missing required fields (messageId=%s)", msg.Message.ID)
		c.Status(http.StatusNoContent)
		return
	}

	if err := workflow.ProcessMillEvent(c.Request.Context(), logger, msg.Message.ID, event); err != nil {
		config.LogError(logger, "server.go", "pubsubPushHandler", "event processing failed", event.Event, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Correlation-Id")

	allowed := splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(allowed) > 0 {
		corsConfig.AllowOrigins = allowed
	} else if os.Getenv("GO_ENV") == "production" {
		// No explicit allowlist in production means same-origin only.
		corsConfig.AllowOrigins = []string{}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	return cors.New(corsConfig)
}

// rateLimiter counts requests per client IP in a fixed redis window.
// Redis being down fails open.
func rateLimiter() gin.HandlerFunc {
	maxRequests := int64(100)
	if v, err := strconv.ParseInt(os.Getenv("RATE_LIMIT_MAX_REQUESTS"), 10, 64); err == nil && v > 0 {
		maxRequests = v
	}
	window := 60 * time.Second
	if v, err := strconv.Atoi(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); err == nil && v > 0 {
		window = time.Duration(v) * time.Second
	}

	return func(c *gin.Context) {
		rdb := config.GetRedisDB()
		if rdb == nil {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), time.Now().Unix()/int64(window.Seconds()))
		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(c.Request.Context(), key, window)
		}
		if count > maxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"code": "RATE_LIMITED", "message": "too many requests"}})
			return
		}
		c.Next()
	}
}

func customErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			config.GetLogger().Errorf("request error on %s: %v", c.Request.URL.Path, ginErr.Err)
		}
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
