package config

import (
	"testing"

	"github.com/shopspring/decimal"
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

func TestLoadLedgerPolicyDefaults(t *testing.T) {
	t.Setenv("DISCOUNT_LIMIT_PERCENT", "")
	t.Setenv("DEFAULT_TAX_RATE_PERCENT", "")
	t.Setenv("DB_AUTO_MIGRATE", "")

	cfg := Load()
	if !cfg.DiscountLimitPercent.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected default discount limit 50, got %s", cfg.DiscountLimitPercent)
	}
	if !cfg.DefaultTaxRatePercent.IsZero() {
		t.Fatalf("expected default tax rate 0, got %s", cfg.DefaultTaxRatePercent)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto migrate off by default")
	}
}

func TestLoadParsesPercentages(t *testing.T) {
	t.Setenv("DISCOUNT_LIMIT_PERCENT", "35")
	t.Setenv("DEFAULT_TAX_RATE_PERCENT", "11")
	t.Setenv("DB_AUTO_MIGRATE", "true")

	cfg := Load()
	if !cfg.DiscountLimitPercent.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected discount limit 35, got %s", cfg.DiscountLimitPercent)
	}
	if !cfg.DefaultTaxRatePercent.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("expected tax rate 11, got %s", cfg.DefaultTaxRatePercent)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate on")
	}
}

func TestLoadRejectsOutOfRangePercent(t *testing.T) {
	t.Setenv("DISCOUNT_LIMIT_PERCENT", "150")
	t.Setenv("DEFAULT_TAX_RATE_PERCENT", "abc")

	cfg := Load()
	if !cfg.DiscountLimitPercent.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected fallback discount limit, got %s", cfg.DiscountLimitPercent)
	}
	if !cfg.DefaultTaxRatePercent.IsZero() {
		t.Fatalf("expected fallback tax rate, got %s", cfg.DefaultTaxRatePercent)
	}
}
