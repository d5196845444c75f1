package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashendes/purchase-ledger/internal/models"
	"github.com/ashendes/purchase-ledger/internal/patterns"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	pathBalance = "/api/wallet/findWalletByUserId"
	pathTopUp   = "/api/wallet/addToWallet"
	pathPay     = "/api/wallet/pay"
	pathConfirm = "/api/wallet/confirmPayment"
	pathDebit   = "/api/wallet/debit"
)

// ClientConfig configures the HTTP wallet client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	BulkheadSize int
	Service      string
}

// HTTPClient is the wallet Oracle backed by the wallet REST API
type HTTPClient struct {
	client   *resty.Client
	baseURL  string
	timeout  time.Duration
	circuit  *patterns.CircuitBreakerWrapper
	bulkhead *patterns.Bulkhead
}

// NewHTTPClient builds a wallet client with circuit breaker and bulkhead protection
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = patterns.DefaultTimeout
	}
	if cfg.BulkheadSize <= 0 {
		cfg.BulkheadSize = 10
	}
	if cfg.Service == "" {
		cfg.Service = "purchase-service"
	}

	return &HTTPClient{
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(0). // No automatic retries, we handle via circuit breaker
			SetHeader("Content-Type", "application/json"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		circuit: patterns.NewCircuitBreakerWithOptions("Wallet", cfg.Service, patterns.CircuitBreakerOptions{
			// a refused payment is an answer, not an outage
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRejected)
			},
		}),
		bulkhead: patterns.NewBulkhead(cfg.BulkheadSize, "wallet", cfg.Service),
	}
}

// Circuit exposes the breaker for status reporting
func (c *HTTPClient) Circuit() *patterns.CircuitBreakerWrapper {
	return c.circuit
}

// Balance implements BalanceOracle
func (c *HTTPClient) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out models.WalletBalanceResponse
	err := c.call(ctx, "balance", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("userId", userID).Get(c.baseURL + pathBalance)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

// Pay implements SessionOracle
func (c *HTTPClient) Pay(ctx context.Context, userID string, amount decimal.Decimal) (models.PayResponse, error) {
	var out models.PayResponse
	err := c.call(ctx, "pay", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(models.PayRequest{UserID: userID, Amount: amount}).Post(c.baseURL + pathPay)
	})
	return out, err
}

// ConfirmPayment implements PaymentConfirmer
func (c *HTTPClient) ConfirmPayment(ctx context.Context, req models.ConfirmPaymentRequest) error {
	var out models.ConfirmPaymentResponse
	err := c.call(ctx, "confirm", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post(c.baseURL + pathConfirm)
	})
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return nil
}

// AddToWallet implements TopUpper
func (c *HTTPClient) AddToWallet(ctx context.Context, req models.TopUpRequest) (models.TopUpResponse, error) {
	var out models.TopUpResponse
	err := c.call(ctx, "top_up", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post(c.baseURL + pathTopUp)
	})
	return out, err
}

// Debit implements Debiter
func (c *HTTPClient) Debit(ctx context.Context, userID string, amount decimal.Decimal, transactionID string) (decimal.Decimal, error) {
	var out models.DebitResponse
	err := c.call(ctx, "debit", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(models.DebitRequest{
			UserID:        userID,
			Amount:        amount,
			TransactionID: transactionID,
		}).Post(c.baseURL + pathDebit)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !out.Success {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return out.Amount, nil
}

// call runs one request through bulkhead + circuit breaker and decodes a 2xx body into out
func (c *HTTPClient) call(ctx context.Context, op string, out interface{}, send func(r *resty.Request) (*resty.Response, error)) error {
	// the deadline also bounds the wait for a bulkhead slot
	ctx, cancel := patterns.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.bulkhead.ExecuteContext(ctx, func() error {
		_, cbErr := c.circuit.Execute(func() (interface{}, error) {
			resp, httpErr := send(c.client.R().SetContext(ctx))
			if httpErr != nil {
				return nil, fmt.Errorf("%w: HTTP error: %v", ErrOracleUnavailable, httpErr)
			}

			if resp.StatusCode() >= http.StatusInternalServerError {
				return nil, fmt.Errorf("%w: wallet service returned status %d: %s", ErrOracleUnavailable, resp.StatusCode(), resp.String())
			}
			if resp.IsError() {
				return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), errorMessage(resp.Body()))
			}

			if out != nil && len(resp.Body()) > 0 {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return nil, fmt.Errorf("%w: failed to parse response: %v", ErrOracleUnavailable, err)
				}
			}
			return nil, nil
		})
		return patterns.FormatError(c.circuit.Name(), cbErr)
	})

	if err != nil {
		if !errors.Is(err, ErrOracleUnavailable) && !errors.Is(err, ErrRejected) {
			// breaker open, bulkhead full or context cancelled
			err = fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		log.WithFields(log.Fields{
			"operation": op,
			"error":     err.Error(),
		}).Warn("Wallet call failed")
	}
	return err
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
