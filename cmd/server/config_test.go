package main

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != ":8080" {
		t.Errorf("default address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Server.MetricsAddress != ":9090" {
		t.Errorf("default metrics address = %q, want :9090", cfg.Server.MetricsAddress)
	}
	if cfg.Mongo.Database != "stagewise" {
		t.Errorf("default database = %q, want stagewise", cfg.Mongo.Database)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate_RejectsInvalidDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.AccessTokenTTL = "not-a-duration"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid api.access_token_ttl")
	}
}

func TestConfigValidate_AcceptsValidDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.AccessTokenTTL = "15m"
	cfg.API.RefreshTokenTTL = "168h"
	cfg.API.LockoutDuration = "30m"
	cfg.API.QueryTimeout = "10s"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	if got := parseDuration(cfg.API.QueryTimeout).Seconds(); got != 10 {
		t.Errorf("query timeout = %vs, want 10s", got)
	}
}
