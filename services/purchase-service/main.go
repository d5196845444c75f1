package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashendes/purchase-ledger/internal/catalog"
	"github.com/ashendes/purchase-ledger/internal/config"
	"github.com/ashendes/purchase-ledger/internal/handlers"
	"github.com/ashendes/purchase-ledger/internal/metrics"
	"github.com/ashendes/purchase-ledger/internal/purchase"
	"github.com/ashendes/purchase-ledger/internal/store"
	"github.com/ashendes/purchase-ledger/internal/validation"
	"github.com/ashendes/purchase-ledger/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const serviceName = "purchase-service"

func init() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.WithField("level", cfg.Log.Level).Warn("Unknown log level, keeping info")
	} else {
		log.SetLevel(level)
	}

	products, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("Failed to load catalog: ", err)
	}

	walletClient := wallet.NewHTTPClient(wallet.ClientConfig{
		BaseURL:      cfg.Wallet.BaseURL,
		Timeout:      cfg.Wallet.Timeout,
		BulkheadSize: cfg.Wallet.BulkheadSize,
		Service:      serviceName,
	})

	deps := purchase.Dependencies{
		Catalog:      products,
		Transactions: store.NewTransactionLog(),
		Tokens:       store.NewTokenStore(),
		Balances:     walletClient,
		Confirmer:    walletClient,
		TopUps:       walletClient,
	}
	if cfg.Wallet.BalanceSoftFail {
		deps.Balances = wallet.SoftFailBalance{Next: walletClient}
	}
	if cfg.Wallet.UsePaySession {
		deps.Sessions = walletClient
	}
	if cfg.Wallet.DebitEnabled {
		deps.Debits = walletClient
	}

	engine, err := purchase.NewEngine(deps, purchase.Config{
		TokenTTL:  cfg.Purchase.TokenTTL,
		HoldFunds: cfg.Purchase.HoldFunds,
	})
	if err != nil {
		log.Fatal("Failed to build purchase engine: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.StartSweeper(ctx, cfg.Purchase.SweepInterval)

	router := gin.Default()

	// Add Prometheus middleware
	router.Use(metrics.PrometheusMiddleware(serviceName))
	router.Use(handlers.RequestID())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	handlers.NewPurchaseHandler(engine, validation.New(), walletClient.Circuit()).Register(router)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed: ", err)
		}
	}()

	log.WithFields(log.Fields{
		"addr":           cfg.HTTP.Addr,
		"wallet_url":     cfg.Wallet.BaseURL,
		"token_ttl":      cfg.Purchase.TokenTTL.String(),
		"hold_funds":     cfg.Purchase.HoldFunds,
		"sweep_interval": cfg.Purchase.SweepInterval.String(),
		"products":       products.IDs(),
	}).Info("Purchase Service starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server: ", err)
	}
}
