package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_TILL_ID", "")
	t.Setenv("CASHUP_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.TillID != "till-1" {
		t.Fatalf("expected default till id till-1, got %q", cfg.TillID)
	}
	if cfg.CashUpTTLSeconds != 300 {
		t.Fatalf("expected default cash-up TTL 300, got %d", cfg.CashUpTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRejectsBogusTTL(t *testing.T) {
	t.Setenv("CASHUP_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.CashUpTTLSeconds != 300 {
		t.Fatalf("expected fallback TTL 300 for negative value, got %d", cfg.CashUpTTLSeconds)
	}
}
