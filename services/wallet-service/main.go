package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ashendes/purchase-ledger/internal/metrics"
	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/ashendes/purchase-ledger/internal/validation"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const serviceName = "wallet-service"

var errChaos = errors.New("simulated wallet failure")

type paySession struct {
	token  string
	userID string
	amount decimal.Decimal
}

// WalletService is an in-memory wallet backend for local runs
type WalletService struct {
	wallets  map[string]decimal.Decimal
	sessions map[string]paySession
	// debits already applied, by transaction id
	debits        map[string]decimal.Decimal
	mutex         sync.RWMutex
	validate      *validatorv10.Validate
	chaosEnabled  bool
	chaosSlowMode bool
	chaosMutex    sync.RWMutex
}

func NewWalletService(seed map[string]decimal.Decimal) *WalletService {
	ws := &WalletService{
		wallets:  make(map[string]decimal.Decimal),
		sessions: make(map[string]paySession),
		debits:   make(map[string]decimal.Decimal),
		validate: validation.New(),
	}
	for userID, amount := range seed {
		ws.wallets[userID] = amount
	}
	return ws
}

func init() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	seed, err := parseSeed(getEnv("WALLET_SEED", "user-1=1000,user-2=50"))
	if err != nil {
		log.Fatal("Invalid WALLET_SEED: ", err)
	}
	ws := NewWalletService(seed)

	router := gin.Default()

	// Add Prometheus middleware
	router.Use(metrics.PrometheusMiddleware(serviceName))

	ws.Register(router)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := ":" + getEnv("PORT", "8083")
	log.WithField("wallets", len(seed)).Info("Wallet Service starting on " + addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

// Register mounts the wallet API, status and chaos endpoints
func (ws *WalletService) Register(r gin.IRouter) {
	// Health check endpoints
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/wallet/status", ws.getStatus)

	api := r.Group("/api/wallet")
	api.GET("/findWalletByUserId", ws.findWallet)
	api.POST("/pay", ws.pay)
	api.POST("/confirmPayment", ws.confirmPayment)
	api.POST("/debit", ws.debit)
	api.POST("/addToWallet", ws.addToWallet)

	// Chaos engineering endpoints
	r.POST("/chaos/wallet/enable", ws.enableChaos)
	r.POST("/chaos/wallet/disable", ws.disableChaos)
	r.POST("/chaos/wallet/slow", ws.enableSlowMode)
	r.POST("/chaos/wallet/slow/disable", ws.disableSlowMode)
}

func (ws *WalletService) getStatus(c *gin.Context) {
	ws.mutex.RLock()
	wallets, sessions := len(ws.wallets), len(ws.sessions)
	ws.mutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"service":         serviceName,
		"status":          "healthy",
		"wallets":         wallets,
		"open_sessions":   sessions,
		"chaos_enabled":   ws.getChaosEnabled(),
		"chaos_slow_mode": ws.getSlowMode(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func (ws *WalletService) findWallet(c *gin.Context) {
	userID := c.Query("userId")
	if ws.chaos(c) {
		return
	}

	ws.mutex.RLock()
	amount, ok := ws.wallets[userID]
	ws.mutex.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Wallet not found"})
		return
	}
	c.JSON(http.StatusOK, models.WalletBalanceResponse{UserID: userID, Amount: amount})
}

func (ws *WalletService) pay(c *gin.Context) {
	var req models.PayRequest
	if err := validation.BindAndValidate(c, &req, ws.validate); err != nil {
		return
	}
	if ws.chaos(c) {
		return
	}

	token, err := newSessionToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Could not open session"})
		return
	}
	sessionID := uuid.New().String()

	ws.mutex.Lock()
	ws.sessions[sessionID] = paySession{token: token, userID: req.UserID, amount: req.Amount}
	ws.mutex.Unlock()

	log.WithFields(log.Fields{
		"session_id": sessionID,
		"user_id":    req.UserID,
		"amount":     req.Amount.String(),
	}).Info("Payment session opened")

	c.JSON(http.StatusOK, models.PayResponse{SessionID: sessionID, Token: token})
}

// confirmPayment checks the payload against its session; it never moves money.
// Sessions the ledger opened itself (no /pay call) are accepted when the wallet
// exists, since only the ledger knows their tokens.
func (ws *WalletService) confirmPayment(c *gin.Context) {
	var req models.ConfirmPaymentRequest
	if err := validation.BindAndValidate(c, &req, ws.validate); err != nil {
		return
	}
	if ws.chaos(c) {
		return
	}

	ws.mutex.RLock()
	session, opened := ws.sessions[req.SessionID]
	_, settled := ws.debits[req.SessionID]
	_, hasWallet := ws.wallets[req.UserID]
	ws.mutex.RUnlock()

	status, refusal := http.StatusOK, ""
	switch {
	case settled:
		status, refusal = http.StatusConflict, "Payment session already settled"
	case opened && (session.token != req.Token || session.userID != req.UserID || !session.amount.Equal(req.Amount)):
		status, refusal = http.StatusNotFound, "Unknown payment session"
	case !opened && !hasWallet:
		status, refusal = http.StatusNotFound, "Wallet not found"
	}

	if refusal != "" {
		log.WithFields(log.Fields{
			"session_id": req.SessionID,
			"reason":     refusal,
		}).Warn("Payment confirmation refused")
		c.JSON(status, models.ConfirmPaymentResponse{
			Success: false,
			Message: refusal,
		})
		return
	}

	c.JSON(http.StatusOK, models.ConfirmPaymentResponse{Success: true, Message: "Payment confirmed"})
}

func (ws *WalletService) debit(c *gin.Context) {
	var req models.DebitRequest
	if err := validation.BindAndValidate(c, &req, ws.validate); err != nil {
		return
	}
	if ws.chaos(c) {
		return
	}

	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	balance, ok := ws.wallets[req.UserID]
	if !ok {
		c.JSON(http.StatusNotFound, models.DebitResponse{Message: "Wallet not found"})
		return
	}
	if req.TransactionID != "" {
		if _, done := ws.debits[req.TransactionID]; done {
			c.JSON(http.StatusOK, models.DebitResponse{Success: true, Amount: balance, Message: "Already debited"})
			return
		}
	}
	if balance.LessThan(req.Amount) {
		c.JSON(http.StatusConflict, models.DebitResponse{Amount: balance, Message: "Insufficient funds"})
		return
	}

	balance = balance.Sub(req.Amount)
	ws.wallets[req.UserID] = balance
	if req.TransactionID != "" {
		ws.debits[req.TransactionID] = req.Amount
		delete(ws.sessions, req.TransactionID)
	}

	// Record payment amount metric
	metrics.PaymentAmount.Observe(req.Amount.InexactFloat64())

	log.WithFields(log.Fields{
		"user_id":        req.UserID,
		"transaction_id": req.TransactionID,
		"amount":         req.Amount.String(),
		"balance":        balance.String(),
	}).Info("Wallet debited")

	c.JSON(http.StatusOK, models.DebitResponse{Success: true, Amount: balance})
}

// addToWallet credits the wallet identified by the payer's document number
func (ws *WalletService) addToWallet(c *gin.Context) {
	var req models.TopUpRequest
	if err := validation.BindAndValidate(c, &req, ws.validate); err != nil {
		return
	}
	if ws.chaos(c) {
		return
	}

	ws.mutex.Lock()
	balance := ws.wallets[req.Document].Add(req.Amount)
	ws.wallets[req.Document] = balance
	ws.mutex.Unlock()

	log.WithFields(log.Fields{
		"user_id": req.Document,
		"amount":  req.Amount.String(),
		"balance": balance.String(),
	}).Info("Wallet topped up")

	c.JSON(http.StatusOK, models.TopUpResponse{Success: true, Amount: balance, Message: "Wallet topped up"})
}

func (ws *WalletService) enableChaos(c *gin.Context) {
	ws.setChaosEnabled(true)
	metrics.ChaosFailureRate.WithLabelValues(serviceName).Set(1)

	log.Info("Chaos mode ENABLED for wallet service")
	c.JSON(http.StatusOK, gin.H{
		"message": "Chaos mode enabled",
		"info":    "40% of requests will fail randomly",
	})
}

func (ws *WalletService) disableChaos(c *gin.Context) {
	ws.setChaosEnabled(false)
	ws.setSlowMode(false)
	metrics.ChaosFailureRate.WithLabelValues(serviceName).Set(0)
	metrics.ChaosSlowMode.WithLabelValues(serviceName).Set(0)

	log.Info("Chaos mode DISABLED for wallet service")
	c.JSON(http.StatusOK, gin.H{
		"message": "Chaos mode disabled",
	})
}

func (ws *WalletService) enableSlowMode(c *gin.Context) {
	ws.setSlowMode(true)
	metrics.ChaosSlowMode.WithLabelValues(serviceName).Set(1)

	log.Info("Slow mode ENABLED for wallet service")
	c.JSON(http.StatusOK, gin.H{
		"message": "Slow mode enabled",
		"info":    "Requests will have 5-10 second delays",
	})
}

func (ws *WalletService) disableSlowMode(c *gin.Context) {
	ws.setSlowMode(false)
	metrics.ChaosSlowMode.WithLabelValues(serviceName).Set(0)

	log.Info("Slow mode DISABLED for wallet service")
	c.JSON(http.StatusOK, gin.H{
		"message": "Slow mode disabled",
	})
}

// chaos applies the chaos settings and writes a 503 when the request should fail
func (ws *WalletService) chaos(c *gin.Context) bool {
	if err := ws.simulateChaos(); err != nil {
		log.WithField("path", c.FullPath()).Warn("Chaos: Simulated wallet failure")
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Message: "Wallet service temporarily unavailable: " + err.Error(),
		})
		return true
	}
	return false
}

// Helper methods
func (ws *WalletService) setChaosEnabled(enabled bool) {
	ws.chaosMutex.Lock()
	defer ws.chaosMutex.Unlock()
	ws.chaosEnabled = enabled
}

func (ws *WalletService) getChaosEnabled() bool {
	ws.chaosMutex.RLock()
	defer ws.chaosMutex.RUnlock()
	return ws.chaosEnabled
}

func (ws *WalletService) setSlowMode(enabled bool) {
	ws.chaosMutex.Lock()
	defer ws.chaosMutex.Unlock()
	ws.chaosSlowMode = enabled
}

func (ws *WalletService) getSlowMode() bool {
	ws.chaosMutex.RLock()
	defer ws.chaosMutex.RUnlock()
	return ws.chaosSlowMode
}

func (ws *WalletService) simulateChaos() error {
	// Check if slow mode is enabled
	if ws.getSlowMode() {
		delay := time.Duration(5000+randomInt(5000)) * time.Millisecond
		log.WithField("delay_ms", delay.Milliseconds()).Debug("Chaos: Simulating slow response")
		time.Sleep(delay)
	}

	// 40% failure rate
	if ws.getChaosEnabled() && randomInt(100) < 40 {
		return errChaos
	}

	return nil
}

func randomInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

func newSessionToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseSeed reads "user=amount" pairs separated by commas
func parseSeed(raw string) (map[string]decimal.Decimal, error) {
	seed := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		userID, amount, ok := strings.Cut(pair, "=")
		if !ok || userID == "" {
			return nil, errors.New("expected user=amount, got " + pair)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		seed[userID] = d
	}
	return seed, nil
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
