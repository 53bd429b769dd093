package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/facucarcelero/comandero/internal/config"
	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store/memory"
	"github.com/facucarcelero/comandero/internal/store/sqlite"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"999999", "234567", "876543", "121212"} {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected pin %s to be rejected", pin)
		}
	}
	if err := validatePINStrength("480317"); err != nil {
		t.Fatalf("expected pin to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no closer for the in-memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	products, err := repo.ListProducts(context.Background(), domain.ProductFilter{})
	if err != nil || len(products) == 0 {
		t.Fatalf("expected seeded catalog, got %d products (%v)", len(products), err)
	}
}

func TestOpenRepositoryUsesSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	repo, closeFn, err := openRepository(context.Background(), config.Config{DBPath: path})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })
	if _, ok := repo.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", repo)
	}
}
