package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	PriceFeed struct {
		Endpoints         []string `yaml:"endpoints"`
		Symbol            string   `yaml:"symbol"`
		IntervalSeconds   int      `yaml:"interval_seconds"`
		MarkupPercent     float64  `yaml:"markup_percent"`
		FailoverThreshold int      `yaml:"failover_threshold"`
	} `yaml:"price_feed"`
	Orders struct {
		MinAmount          int64 `yaml:"min_amount"`
		MaxReceipts        int   `yaml:"max_receipts"`
		QuoteLockSeconds   int   `yaml:"quote_lock_seconds"`
		PaymentLockSeconds int   `yaml:"payment_lock_seconds"`
	} `yaml:"orders"`
	Storage struct {
		Endpoint      string `yaml:"endpoint"`
		Key           string `yaml:"key"`
		ReceiptBucket string `yaml:"receipt_bucket"`
		SignedURLTTL  int    `yaml:"signed_url_ttl_seconds"`
	} `yaml:"storage"`
	Notify struct {
		Endpoint      string `yaml:"endpoint"`
		Key           string `yaml:"key"`
		OperatorEmail string `yaml:"operator_email"`
	} `yaml:"notify"`
	Admin struct {
		Token string `yaml:"token"`
	} `yaml:"admin"`
	Worker struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if len(cfg.PriceFeed.Endpoints) == 0 || cfg.PriceFeed.Symbol == "" {
		return nil, errors.New("price_feed config is incomplete")
	}
	if cfg.Admin.Token == "" {
		return nil, errors.New("admin.token is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.PriceFeed.IntervalSeconds <= 0 {
		cfg.PriceFeed.IntervalSeconds = 5
	}
	if cfg.PriceFeed.MarkupPercent <= 0 {
		cfg.PriceFeed.MarkupPercent = 1.0
	}
	if cfg.Orders.MinAmount <= 0 {
		cfg.Orders.MinAmount = 100
	}
	if cfg.Orders.MaxReceipts <= 0 {
		cfg.Orders.MaxReceipts = 7
	}
	if cfg.Orders.QuoteLockSeconds <= 0 {
		cfg.Orders.QuoteLockSeconds = 120
	}
	if cfg.Orders.PaymentLockSeconds <= 0 {
		cfg.Orders.PaymentLockSeconds = 300
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		cfg.Storage.SignedURLTTL = 3600
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 1
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PRICE_FEED_ENDPOINTS"); v != "" {
		cfg.PriceFeed.Endpoints = splitCommaList(v)
	}
	if v := os.Getenv("PRICE_FEED_SYMBOL"); v != "" {
		cfg.PriceFeed.Symbol = v
	}
	if v := os.Getenv("PRICE_FEED_INTERVAL_SECONDS"); v != "" {
		cfg.PriceFeed.IntervalSeconds = atoiOr(cfg.PriceFeed.IntervalSeconds, v)
	}
	if v := os.Getenv("PRICE_FEED_MARKUP_PERCENT"); v != "" {
		cfg.PriceFeed.MarkupPercent = atofOr(cfg.PriceFeed.MarkupPercent, v)
	}
	if v := os.Getenv("PRICE_FEED_FAILOVER_THRESHOLD"); v != "" {
		cfg.PriceFeed.FailoverThreshold = atoiOr(cfg.PriceFeed.FailoverThreshold, v)
	}
	if v := os.Getenv("ORDER_MIN_AMOUNT"); v != "" {
		cfg.Orders.MinAmount = atoi64Or(cfg.Orders.MinAmount, v)
	}
	if v := os.Getenv("ORDER_MAX_RECEIPTS"); v != "" {
		cfg.Orders.MaxReceipts = atoiOr(cfg.Orders.MaxReceipts, v)
	}
	if v := os.Getenv("QUOTE_LOCK_SECONDS"); v != "" {
		cfg.Orders.QuoteLockSeconds = atoiOr(cfg.Orders.QuoteLockSeconds, v)
	}
	if v := os.Getenv("PAYMENT_LOCK_SECONDS"); v != "" {
		cfg.Orders.PaymentLockSeconds = atoiOr(cfg.Orders.PaymentLockSeconds, v)
	}
	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_KEY"); v != "" {
		cfg.Storage.Key = v
	}
	if v := os.Getenv("STORAGE_RECEIPT_BUCKET"); v != "" {
		cfg.Storage.ReceiptBucket = v
	}
	if v := os.Getenv("NOTIFY_ENDPOINT"); v != "" {
		cfg.Notify.Endpoint = v
	}
	if v := os.Getenv("NOTIFY_KEY"); v != "" {
		cfg.Notify.Key = v
	}
	if v := os.Getenv("NOTIFY_OPERATOR_EMAIL"); v != "" {
		cfg.Notify.OperatorEmail = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoiOr(cfg.Worker.IntervalSeconds, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func atofOr(fallback float64, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
