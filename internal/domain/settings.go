package domain

import "strconv"

const (
	SettingTaxRateBP        = "tax_rate_bp"
	SettingCurrency         = "currency"
	SettingCurrencySymbol   = "currency_symbol"
	SettingCurrencyDecimals = "currency_decimals"
	SettingLocale           = "locale"
	SettingBusinessName     = "business_name"
)

// Values flattens settings into the key/value form the stores persist.
func (s Settings) Values() map[string]string {
	return map[string]string{
		SettingTaxRateBP:        strconv.FormatInt(s.TaxRateBP, 10),
		SettingCurrency:         s.Currency,
		SettingCurrencySymbol:   s.CurrencySymbol,
		SettingCurrencyDecimals: strconv.Itoa(s.CurrencyDecimals),
		SettingLocale:           s.Locale,
		SettingBusinessName:     s.BusinessName,
	}
}

// ApplyValues overlays stored values on base. Unknown keys and numbers that
// do not parse are ignored.
func (s Settings) ApplyValues(values map[string]string) Settings {
	if v, ok := values[SettingTaxRateBP]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.TaxRateBP = n
		}
	}
	if v, ok := values[SettingCurrencyDecimals]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.CurrencyDecimals = n
		}
	}
	if v, ok := values[SettingCurrency]; ok && v != "" {
		s.Currency = v
	}
	if v, ok := values[SettingCurrencySymbol]; ok {
		s.CurrencySymbol = v
	}
	if v, ok := values[SettingLocale]; ok && v != "" {
		s.Locale = v
	}
	if v, ok := values[SettingBusinessName]; ok && v != "" {
		s.BusinessName = v
	}
	return s
}
