package config

import "testing"

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

func TestLoadParsesCacheTTL(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "45")
	if cfg := Load(); cfg.ReportCacheTTLSeconds != 45 {
		t.Fatalf("expected TTL 45, got %d", cfg.ReportCacheTTLSeconds)
	}

	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")
	if cfg := Load(); cfg.ReportCacheTTLSeconds != 20 {
		t.Fatalf("expected fallback TTL 20, got %d", cfg.ReportCacheTTLSeconds)
	}
}
