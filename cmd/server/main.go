package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/facucarcelero/comandero/internal/cache"
	"github.com/facucarcelero/comandero/internal/config"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/httpapi"
	"github.com/facucarcelero/comandero/internal/printer"
	"github.com/facucarcelero/comandero/internal/service"
	"github.com/facucarcelero/comandero/internal/store"
	"github.com/facucarcelero/comandero/internal/store/memory"
	pgstore "github.com/facucarcelero/comandero/internal/store/postgres"
	"github.com/facucarcelero/comandero/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("WARN redis unavailable (%v), reports are computed on every request", err)
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("report cache: redis")
		}
	} else {
		log.Println("report cache: noop")
	}

	publisher := events.Publisher(events.NoopPublisher{})
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		closers = append(closers, publisher.Close)
		log.Printf("events: kafka topic %s", cfg.KafkaTopic)
	} else {
		log.Println("events: noop")
	}

	receiptPrinter := printer.New(cfg.PrinterAddr)
	if receiptPrinter.Enabled() {
		log.Printf("printer: %s", cfg.PrinterAddr)
	}

	svc := service.New(repo, service.Options{
		Defaults:     cfg.Defaults,
		Events:       publisher,
		ReportCache:  reportCache,
		ReportTTL:    cfg.ReportCacheTTL,
		Printer:      receiptPrinter,
		PrinterWidth: cfg.PrinterWidth,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("comandero listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set, then the sqlite
// file at DB_PATH, then a seeded in-memory store.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with a fallback store", err)
		}
		log.Println("repository: postgres")
		return pg, pg.Close, nil
	case cfg.DBPath != "":
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite %s: %w", cfg.DBPath, err)
		}
		log.Printf("repository: sqlite %s", cfg.DBPath)
		return db, db.Close, nil
	default:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	switch {
	case len(cfg.AuthSecret) < 32:
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	case len(cfg.ManagerPIN) < 6:
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

var weakPINs = []string{"121212", "112233", "123123", "101010", "696969"}

// validatePINStrength rejects repeated digits, straight runs such as
// 234567 or 876543, and a short list of popular PINs.
func validatePINStrength(pin string) error {
	if slices.Contains(weakPINs, pin) {
		return fmt.Errorf("common PIN not allowed")
	}
	if strings.Count(pin, pin[:1]) == len(pin) {
		return fmt.Errorf("repeated digit PIN not allowed")
	}
	step := int(pin[1]) - int(pin[0])
	if step == 1 || step == -1 {
		run := true
		for i := 2; i < len(pin) && run; i++ {
			run = int(pin[i])-int(pin[i-1]) == step
		}
		if run {
			return fmt.Errorf("sequential PIN not allowed")
		}
	}
	return nil
}
