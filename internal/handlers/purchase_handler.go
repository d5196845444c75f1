// Package handlers exposes the purchase engine over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/ashendes/purchase-ledger/internal/purchase"
	"github.com/ashendes/purchase-ledger/internal/validation"
	"github.com/ashendes/purchase-ledger/internal/wallet"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PurchaseEngine is the part of purchase.Engine the HTTP layer needs
type PurchaseEngine interface {
	GeneratePurchaseToken(ctx context.Context, productID string, amount decimal.Decimal, userID string) (models.PurchaseToken, error)
	ProcessPayment(ctx context.Context, req models.ConfirmPaymentRequest) (models.ProcessPaymentResponse, error)
	GetTransactions(userID string) []models.Transaction
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	AddBalance(ctx context.Context, req models.TopUpRequest) (models.TopUpResponse, error)
	Products() []models.Product
	Product(id string) (models.Product, bool)
}

// CircuitReporter is implemented by patterns.CircuitBreakerWrapper
type CircuitReporter interface {
	Name() string
	GetState() string
	GetStateValue() int
}

// PurchaseHandler serves the storefront API
type PurchaseHandler struct {
	engine   PurchaseEngine
	validate *validatorv10.Validate
	circuits []CircuitReporter
}

func NewPurchaseHandler(engine PurchaseEngine, validate *validatorv10.Validate, circuits ...CircuitReporter) *PurchaseHandler {
	return &PurchaseHandler{
		engine:   engine,
		validate: validate,
		circuits: circuits,
	}
}

// Register mounts the purchase routes on r
func (h *PurchaseHandler) Register(r gin.IRouter) {
	r.GET("/products", h.listProducts)
	r.GET("/products/:productId", h.getProduct)

	r.POST("/purchase/token", h.generateToken)
	r.POST("/purchase/confirm", h.confirmPayment)

	r.GET("/wallet/:userId/transactions", h.getTransactions)
	r.GET("/wallet/:userId/balance", h.getBalance)
	r.POST("/wallet/top-up", h.topUp)
	r.GET("/wallet/circuit-status", h.getCircuitStatus)
}

func (h *PurchaseHandler) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Products())
}

func (h *PurchaseHandler) getProduct(c *gin.Context) {
	product, ok := h.engine.Product(c.Param("productId"))
	if !ok {
		respondError(c, purchase.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *PurchaseHandler) generateToken(c *gin.Context) {
	var req models.GenerateTokenRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	token, err := h.engine.GeneratePurchaseToken(c.Request.Context(), req.ProductID, req.Amount, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *PurchaseHandler) confirmPayment(c *gin.Context) {
	var req models.ConfirmPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	res, err := h.engine.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *PurchaseHandler) getTransactions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetTransactions(c.Param("userId")))
}

func (h *PurchaseHandler) getBalance(c *gin.Context) {
	userID := c.Param("userId")

	balance, err := h.engine.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{UserID: userID, Balance: balance})
}

func (h *PurchaseHandler) topUp(c *gin.Context) {
	var req models.TopUpRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	res, err := h.engine.AddBalance(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// getCircuitStatus returns the state of the wallet circuit breakers
func (h *PurchaseHandler) getCircuitStatus(c *gin.Context) {
	circuits := make([]gin.H, 0, len(h.circuits))
	for _, cb := range h.circuits {
		circuits = append(circuits, gin.H{
			"name":  cb.Name(),
			"state": cb.GetState(),
			"value": cb.GetStateValue(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"circuits": circuits})
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, purchase.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, purchase.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, purchase.ErrInvalidAmount):
		return http.StatusBadRequest
	// checked before ErrOracleUnavailable: a refused confirmation wraps both
	case errors.Is(err, purchase.ErrInvalidOrExpiredToken):
		return http.StatusGone
	case errors.Is(err, purchase.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, purchase.ErrTopUpUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)

	message := purchase.PublicMessage(err)
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString(requestIDKey),
			"error":      err.Error(),
		}).Error("Request failed")
		message = "Internal server error"
	}

	c.JSON(status, models.ErrorResponse{Success: false, Message: message})
}
