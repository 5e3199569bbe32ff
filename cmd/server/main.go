package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gridbook/gridbook-api/internal/auth"
	"github.com/gridbook/gridbook-api/internal/database"
	"github.com/gridbook/gridbook-api/internal/engine"
	"github.com/gridbook/gridbook-api/internal/pairs"
	"github.com/gridbook/gridbook-api/internal/settlement"
	"github.com/gridbook/gridbook-api/internal/strategy"
	"github.com/gridbook/gridbook-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the grid trading API server with graceful
// shutdown support. It sets up all required services, database connections,
// and API routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("GRIDBOOK_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "gridbook-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)

	pairsService := pairs.NewService(db)
	pairsHandlers := pairs.NewGinHandlers(pairsService)

	registry := strategy.NewRegistry(strategy.NewLinear(db), strategy.NewGeometric(db))
	engineService := engine.NewService(db, registry)

	settlementService := settlement.NewService(db, pairsService.Database())
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	engineHandlers := engine.NewGinHandlers(engineService, settlementService)

	// Create and start settlement processor
	settlementProcessor := settlement.NewProcessor(settlementService.Database())
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go settlementProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, pairsHandlers, engineHandlers, settlementHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers. Routes are
// grouped by concern: public auth and market data, JWT-protected grid and
// fill operations, and JWT-protected balance and settlement queries.
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	pairsHandlers *pairs.GinHandlers,
	engineHandlers *engine.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Pair listing: reads are public, listing a pair needs a token
		pairsGroup := v1.Group("/pairs")
		{
			pairsGroup.GET("", pairsHandlers.ListPairsHandler())
			pairsGroup.GET("/:pair_id", pairsHandlers.GetPairHandler())
			pairsGroup.POST("", middleware.JWTAuth(jwtSecret), pairsHandlers.CreatePairHandler())
		}

		// Grid lifecycle routes
		grids := v1.Group("/grids")
		grids.Use(middleware.JWTAuth(jwtSecret))
		{
			grids.POST("", engineHandlers.PlaceGridHandler())
			grids.GET("/:grid_id", engineHandlers.GetGridHandler())
			grids.POST("/:grid_id/cancel", engineHandlers.CancelGridHandler())
			grids.POST("/:grid_id/orders/cancel", engineHandlers.CancelOrdersHandler())
			grids.PUT("/:grid_id/fee", engineHandlers.ModifyFeeHandler())
			grids.POST("/:grid_id/profits/withdraw", engineHandlers.WithdrawProfitsHandler())
		}

		// Order state is public market data
		orders := v1.Group("/orders")
		{
			orders.GET("/:order_id", engineHandlers.GetOrderHandler())
		}

		// Taker fill routes
		fills := v1.Group("/fills")
		fills.Use(middleware.JWTAuth(jwtSecret))
		{
			fills.POST("/ask", engineHandlers.FillAskHandler())
			fills.POST("/bid", engineHandlers.FillBidHandler())
		}

		// Balance and settlement routes
		balances := v1.Group("/balances")
		{
			balances.POST("/deposit", settlementHandlers.DepositHandler())
			balances.GET("", middleware.JWTAuth(jwtSecret), settlementHandlers.GetBalancesHandler())
			balances.POST("/withdraw", middleware.JWTAuth(jwtSecret), settlementHandlers.WithdrawHandler())
		}

		settlements := v1.Group("/settlements")
		settlements.Use(middleware.JWTAuth(jwtSecret))
		{
			settlements.GET("", settlementHandlers.GetAccountSettlementsHandler())
			settlements.GET("/:settlement_id", settlementHandlers.GetSettlementHandler())
		}

		// Protocol fee accruals are operator data
		v1.GET("/protocol/fees", settlementHandlers.GetProtocolFeesHandler())
	}
}
