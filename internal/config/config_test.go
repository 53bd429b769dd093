package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "TAX_RATE_BP", "CURRENCY", "LOCALE", "KAFKA_BROKERS", "KAFKA_TOPIC", "PRINTER_WIDTH", "REPORT_CACHE_TTL_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.Defaults.TaxRateBP != 1900 || cfg.Defaults.Currency != "COP" || cfg.Defaults.Locale != "es-CO" {
		t.Fatalf("unexpected settings defaults %+v", cfg.Defaults)
	}
	if cfg.KafkaBrokers != nil || cfg.KafkaTopic != "pos-events" {
		t.Fatalf("unexpected kafka config %v %q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.PrinterWidth != 48 || cfg.ReportCacheTTL != 30*time.Second {
		t.Fatalf("unexpected printer width %d or cache ttl %s", cfg.PrinterWidth, cfg.ReportCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAX_RATE_BP", "800")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("CURRENCY_DECIMALS", "2")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PRINTER_WIDTH", "8")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "nope")

	cfg := Load()
	if cfg.Defaults.TaxRateBP != 800 || cfg.Defaults.Currency != "USD" || cfg.Defaults.CurrencyDecimals != 2 {
		t.Fatalf("overrides not applied: %+v", cfg.Defaults)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PrinterWidth != 48 {
		t.Fatalf("expected too narrow printer width to fall back, got %d", cfg.PrinterWidth)
	}
	if cfg.AccessTokenTTL() != 480*time.Minute {
		t.Fatalf("expected malformed ttl to fall back, got %s", cfg.AccessTokenTTL())
	}
}

func TestDBPathEmptySelectsMemory(t *testing.T) {
	t.Setenv("DB_PATH", "")
	if got := Load().DBPath; got != "" {
		t.Fatalf("expected explicit empty DB_PATH to be kept, got %q", got)
	}
}
