package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CommissionRate != 0.2 {
		t.Errorf("CommissionRate = %v, want 0.2", cfg.CommissionRate)
	}
	if cfg.RateLimitWindow != 15*time.Minute {
		t.Errorf("RateLimitWindow = %v, want 15m", cfg.RateLimitWindow)
	}
	if cfg.CatalogCacheTTL != 5*time.Minute {
		t.Errorf("CatalogCacheTTL = %v, want 5m", cfg.CatalogCacheTTL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, want two defaults", cfg.CORSOrigins)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("expected development environment by default")
	}
}

func TestLoadConfigRequiresMongoURI(t *testing.T) {
	t.Setenv("STORAGE", "mongo")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when MONGODB_URI is missing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory with secret", Config{Storage: StorageMemory, JWTSecret: "s"}, false},
		{"jwks only", Config{Storage: StorageMemory, JWKSURL: "https://example.com/jwks"}, false},
		{"no auth", Config{Storage: StorageMemory}, true},
		{"unknown storage", Config{Storage: "redis", JWTSecret: "s"}, true},
		{"commission too high", Config{Storage: StorageMemory, JWTSecret: "s", CommissionRate: 1.5}, true},
		{"node id out of range", Config{Storage: StorageMemory, JWTSecret: "s", NodeID: 2048}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
