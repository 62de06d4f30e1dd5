// Package httpapi exposes the loyalty ledger, registration, orders and revenue over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
	unmatchedRoute        = "unmatched"
)

// ErrInvalidRouterConfig reports a router wired without a required dependency.
var ErrInvalidRouterConfig = errors.New("invalid router config")

// Dependencies are the domain services served by the router.
type Dependencies struct {
	Ledger    *loyalty.Service
	Registrar *loyalty.Registrar
	Orders    *loyalty.OrderAggregator
	Revenue   *revenue.Aggregator
	Logger    *zap.Logger
}

// Options tune the transport.
type Options struct {
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	RegistrationRPS   float64
	RegistrationBurst int
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(dependencies Dependencies, options Options) (*gin.Engine, error) {
	if dependencies.Ledger == nil || dependencies.Registrar == nil || dependencies.Orders == nil || dependencies.Revenue == nil {
		return nil, fmt.Errorf("%w: domain services are required", ErrInvalidRouterConfig)
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = defaultRequestTimeout
	}

	handler := &httpHandler{
		logger:         logger,
		ledger:         dependencies.Ledger,
		registrar:      dependencies.Registrar,
		orders:         dependencies.Orders,
		revenue:        dependencies.Revenue,
		requestTimeout: options.RequestTimeout,
	}
	limiter := newRateLimiter(options.RegistrationRPS, options.RegistrationBurst)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(countRequests())
	corsConfig := cors.Config{
		AllowOrigins: options.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(options.AllowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/registrations", limiter.middleware(logger), handler.handleRegistration)
	api.POST("/guests/:guest_id/adjustments", handler.handleAdjustment)
	api.GET("/guests/:guest_id/balance", handler.handleBalance)
	api.GET("/guests/:guest_id/transactions", handler.handleTransactions)
	api.GET("/guests/:guest_id/ledger/verify", handler.handleVerify)
	api.GET("/orders", handler.handleOrders)
	api.GET("/revenue", handler.handleRevenue)
	api.GET("/revenue/export", handler.handleRevenueExport)

	return router, nil
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("guestledger listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func countRequests() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.IncHTTP(route, ctx.Writer.Status())
	}
}
