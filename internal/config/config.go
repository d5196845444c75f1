// Package config loads purchase-service settings: code defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Purchase PurchaseConfig `yaml:"purchase"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type WalletConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	BulkheadSize int           `yaml:"bulkhead_size"`
	// BalanceSoftFail reports a zero balance when the wallet is unreachable
	BalanceSoftFail bool `yaml:"balance_soft_fail"`
	UsePaySession   bool `yaml:"use_pay_session"`
	DebitEnabled    bool `yaml:"debit_enabled"`
}

type PurchaseConfig struct {
	TokenTTL  time.Duration `yaml:"token_ttl"`
	HoldFunds bool          `yaml:"hold_funds"`
	// SweepInterval of zero disables the background expiry sweeper
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type CatalogConfig struct {
	// Path to a YAML product list; empty means the built-in catalog
	Path string `yaml:"path"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info"},
		Wallet: WalletConfig{
			BaseURL:       "http://localhost:8083",
			Timeout:       3 * time.Second,
			BulkheadSize:  10,
			UsePaySession: true,
			DebitEnabled:  true,
		},
		Purchase: PurchaseConfig{
			TokenTTL: 5 * time.Minute,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c Config) Validate() error {
	if c.Wallet.BaseURL == "" {
		return errors.New("wallet.base_url is required")
	}
	if c.Wallet.Timeout <= 0 {
		return fmt.Errorf("wallet.timeout must be positive, got %s", c.Wallet.Timeout)
	}
	if c.Wallet.BulkheadSize <= 0 {
		return fmt.Errorf("wallet.bulkhead_size must be positive, got %d", c.Wallet.BulkheadSize)
	}
	if c.Purchase.TokenTTL <= 0 {
		return fmt.Errorf("purchase.token_ttl must be positive, got %s", c.Purchase.TokenTTL)
	}
	if c.Purchase.SweepInterval < 0 {
		return fmt.Errorf("purchase.sweep_interval must not be negative, got %s", c.Purchase.SweepInterval)
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("WALLET_SERVICE_URL"); v != "" {
		cfg.Wallet.BaseURL = v
	}
	if err := overrideDuration("WALLET_TIMEOUT", &cfg.Wallet.Timeout); err != nil {
		return err
	}
	if err := overrideInt("WALLET_BULKHEAD_SIZE", &cfg.Wallet.BulkheadSize); err != nil {
		return err
	}
	if err := overrideBool("WALLET_BALANCE_SOFT_FAIL", &cfg.Wallet.BalanceSoftFail); err != nil {
		return err
	}
	if err := overrideBool("WALLET_USE_PAY_SESSION", &cfg.Wallet.UsePaySession); err != nil {
		return err
	}
	if err := overrideBool("WALLET_DEBIT_ENABLED", &cfg.Wallet.DebitEnabled); err != nil {
		return err
	}

	if err := overrideDuration("PURCHASE_TOKEN_TTL", &cfg.Purchase.TokenTTL); err != nil {
		return err
	}
	if err := overrideBool("PURCHASE_HOLD_FUNDS", &cfg.Purchase.HoldFunds); err != nil {
		return err
	}
	if err := overrideDuration("PURCHASE_SWEEP_INTERVAL", &cfg.Purchase.SweepInterval); err != nil {
		return err
	}

	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s bool: %w", key, err)
	}
	*target = b
	return nil
}
