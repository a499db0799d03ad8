package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/auth"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/config"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/database"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/engine"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/portfolio"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/registry"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/stream"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/trading"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/pkg/middleware"
)

// init configures logging before anything else runs. Development gets
// pretty console output; production stays structured JSON.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize database")
	}

	// Market state: registry and portfolios are hydrated from the store,
	// then the in-memory copies are the trading authority.
	reg, err := registry.New(db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to hydrate contract registry")
	}
	tracker := portfolio.NewTracker()

	hub := stream.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	eng, err := engine.New(db, reg, tracker, hub)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to hydrate matching engine")
	}

	settleService := settlement.NewService(db, reg, tracker, eng, hub)
	settleProcessor := settlement.NewProcessor(settleService, reg, cfg.SettleInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go settleProcessor.Start(processorCtx)

	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	tradingService := trading.NewService(db, eng, reg, tracker, settleService, hub)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg, hub, authHandlers, tradingHandlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		zlog.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("server forced to shutdown")
	}

	zlog.Info().Msg("server exiting")
}

// setupRoutes wires the API surface:
//   - public market data and account creation
//   - JWT-protected order flow and portfolio views
//   - internal endpoints for the game feed and settlement triggers
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	hub *stream.Hub,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
) {
	router.GET("/ws", hub.ServeWS())

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.GET("/me", middleware.JWTAuth(cfg.JWTSecret), authHandlers.MeHandler())
		}

		api.GET("/leaderboard", authHandlers.LeaderboardHandler())

		contracts := api.Group("/contracts")
		{
			contracts.GET("", tradingHandlers.ListContractsHandler())
			contracts.GET("/:prop_id", tradingHandlers.GetContractHandler())
			contracts.GET("/:prop_id/price", tradingHandlers.PriceHandler())
			contracts.GET("/:prop_id/orderbook", tradingHandlers.OrderBookHandler())
			contracts.GET("/:prop_id/history", tradingHandlers.HistoryHandler())
		}

		orders := api.Group("/orders")
		orders.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			orders.POST("", tradingHandlers.PlaceOrderHandler())
			orders.GET("", tradingHandlers.UserOrdersHandler())
			orders.DELETE("/:order_id", tradingHandlers.CancelOrderHandler())
		}

		api.GET("/trades", middleware.JWTAuth(cfg.JWTSecret), tradingHandlers.UserTradesHandler())
		api.GET("/portfolio", middleware.JWTAuth(cfg.JWTSecret), tradingHandlers.PortfolioHandler())
	}

	// Internal routes (should additionally be protected by internal network)
	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.InternalSecret))
	{
		internal.POST("/contracts", tradingHandlers.CreateContractHandler())
		internal.POST("/contracts/:prop_id/status", tradingHandlers.GameStatusHandler())
		internal.POST("/contracts/:prop_id/settle", tradingHandlers.SettleContractHandler())
	}
}
