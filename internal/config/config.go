package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string
	DBPath      string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PrinterAddr  string
	PrinterWidth int

	Defaults domain.Settings

	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBPath:      lookupEnv("DB_PATH", "comandero.db"),

		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0, 0),
		ReportCacheTTL: time.Duration(getInt("REPORT_CACHE_TTL_SECONDS", 30, 1)) * time.Second,

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "pos-events"),

		PrinterAddr:  strings.TrimSpace(os.Getenv("PRINTER_ADDR")),
		PrinterWidth: getInt("PRINTER_WIDTH", 48, 16),

		Defaults: domain.Settings{
			TaxRateBP:        int64(getInt("TAX_RATE_BP", 1900, 0)),
			Currency:         strings.ToUpper(getEnv("CURRENCY", "COP")),
			CurrencySymbol:   getEnv("CURRENCY_SYMBOL", "$"),
			CurrencyDecimals: getInt("CURRENCY_DECIMALS", 0, 0),
			Locale:           getEnv("LOCALE", "es-CO"),
			BusinessName:     getEnv("BUSINESS_NAME", "Comandero"),
		},

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// lookupEnv keeps an explicitly empty value; only an unset key falls back.
func lookupEnv(key string, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(val)
}

// getInt falls back when the value is missing, malformed, or below min.
func getInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
