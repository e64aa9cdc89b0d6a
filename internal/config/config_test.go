package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Connection.TokenExpiry != 24*time.Hour {
		t.Errorf("TokenExpiry = %v, want 24h", cfg.Connection.TokenExpiry)
	}
	if cfg.Connection.NotifyTimeout != 10*time.Second {
		t.Errorf("NotifyTimeout = %v, want 10s", cfg.Connection.NotifyTimeout)
	}
	if cfg.Connection.TokenSecret != cfg.JWT.Secret {
		t.Error("connection token secret should fall back to JWT secret")
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis URL = %q, want empty", cfg.Redis.URL)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled without SMTP_HOST")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://alumni.example.com/")
	t.Setenv("CONNECTION_TOKEN_EXPIRY", "2h")
	t.Setenv("CONNECTION_TOKEN_SECRET", "links-secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("DB_MIGRATE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Server.BaseURL != "https://alumni.example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.Server.BaseURL)
	}
	if cfg.Connection.TokenExpiry != 2*time.Hour {
		t.Errorf("TokenExpiry = %v, want 2h", cfg.Connection.TokenExpiry)
	}
	if cfg.Connection.TokenSecret != "links-secret" {
		t.Errorf("TokenSecret = %q", cfg.Connection.TokenSecret)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.SMTP.Enabled() || cfg.SMTP.Port != 587 {
		t.Errorf("SMTP = %+v", cfg.SMTP)
	}
	if cfg.Database.Migrate {
		t.Error("Migrate should be false")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CONNECTION_TOKEN_EXPIRY", "soon")
	t.Setenv("SMTP_PORT", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Connection.TokenExpiry != 24*time.Hour {
		t.Errorf("TokenExpiry = %v, want fallback 24h", cfg.Connection.TokenExpiry)
	}
	if cfg.SMTP.Port != 465 {
		t.Errorf("SMTP port = %d, want fallback 465", cfg.SMTP.Port)
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for default JWT secret in production")
	}

	t.Setenv("JWT_SECRET", "a-real-secret")
	if _, err := Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestLoad_RejectsNonPositiveExpiry(t *testing.T) {
	t.Setenv("CONNECTION_TOKEN_EXPIRY", "-1h")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative token expiry")
	}
}
