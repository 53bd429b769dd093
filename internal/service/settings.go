package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

type SettingsManager struct {
	repo     store.SettingsRepository
	defaults domain.Settings
	recorder *recorder
}

// Current overlays stored values on the configured defaults.
func (m *SettingsManager) Current(ctx context.Context) (domain.Settings, error) {
	values, err := m.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return m.defaults.ApplyValues(values), nil
}

func (m *SettingsManager) Update(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	current, err := m.Current(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	next := current
	if req.TaxRateBP != nil {
		next.TaxRateBP = *req.TaxRateBP
	}
	if req.Currency != nil {
		next.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.CurrencySymbol != nil {
		next.CurrencySymbol = strings.TrimSpace(*req.CurrencySymbol)
	}
	if req.CurrencyDecimals != nil {
		next.CurrencyDecimals = *req.CurrencyDecimals
	}
	if req.Locale != nil {
		next.Locale = strings.TrimSpace(*req.Locale)
	}
	if req.BusinessName != nil {
		next.BusinessName = strings.TrimSpace(*req.BusinessName)
	}
	if err := validateSettings(next); err != nil {
		return domain.Settings{}, err
	}

	if err := m.repo.PutSettings(ctx, next.Values()); err != nil {
		return domain.Settings{}, err
	}
	m.recorder.logAudit(ctx, "settings_update", "settings", 0, fmt.Sprintf("tax_rate_bp=%d,currency=%s", next.TaxRateBP, next.Currency))
	return next, nil
}

func validateSettings(s domain.Settings) error {
	if s.TaxRateBP < 0 || s.TaxRateBP > domain.MaxTaxRateBP {
		return invalidInput("tax rate must be between 0 and %d basis points", domain.MaxTaxRateBP)
	}
	if s.CurrencyDecimals < 0 || s.CurrencyDecimals > 4 {
		return invalidInput("currency decimals must be between 0 and 4")
	}
	if len(s.Currency) != 3 {
		return invalidInput("currency must be a 3-letter code")
	}
	if _, err := language.Parse(s.Locale); err != nil {
		return invalidInput("unknown locale %q", s.Locale)
	}
	if s.BusinessName == "" {
		return invalidInput("business name is required")
	}
	return nil
}
