package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/otc"
price_feed:
  endpoints:
    - "https://api.binance.com"
  symbol: "USDTBRL"
admin:
  token: "secret"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PriceFeed.IntervalSeconds != 5 {
		t.Fatalf("interval = %d, want default 5", cfg.PriceFeed.IntervalSeconds)
	}
	if cfg.PriceFeed.MarkupPercent != 1.0 {
		t.Fatalf("markup = %v, want default 1.0", cfg.PriceFeed.MarkupPercent)
	}
	if cfg.Orders.MinAmount != 100 || cfg.Orders.MaxReceipts != 7 {
		t.Fatalf("order defaults = %d/%d, want 100/7", cfg.Orders.MinAmount, cfg.Orders.MaxReceipts)
	}
	if cfg.Orders.QuoteLockSeconds != 120 || cfg.Orders.PaymentLockSeconds != 300 {
		t.Fatalf("lock defaults = %d/%d, want 120/300", cfg.Orders.QuoteLockSeconds, cfg.Orders.PaymentLockSeconds)
	}
	if cfg.Worker.IntervalSeconds != 1 {
		t.Fatalf("worker interval = %d, want default 1", cfg.Worker.IntervalSeconds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRICE_FEED_ENDPOINTS", "https://a.example.com, https://b.example.com")
	t.Setenv("ORDER_MIN_AMOUNT", "250")
	t.Setenv("ADMIN_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.PriceFeed.Endpoints) != 2 || cfg.PriceFeed.Endpoints[1] != "https://b.example.com" {
		t.Fatalf("endpoints = %v", cfg.PriceFeed.Endpoints)
	}
	if cfg.Orders.MinAmount != 250 {
		t.Fatalf("min amount = %d, want 250", cfg.Orders.MinAmount)
	}
	if cfg.Admin.Token != "from-env" {
		t.Fatalf("admin token = %q, want from-env", cfg.Admin.Token)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	if _, err := Load(writeConfig(t, "server:\n  addr: \":8080\"\n")); err == nil {
		t.Fatalf("incomplete config accepted")
	}
}
