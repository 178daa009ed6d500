package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/medsettle")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.MemberBillingOffsetDays != 7 {
		t.Errorf("expected default member billing offset of 7 days, got %d", cfg.MemberBillingOffsetDays)
	}
	if cfg.GatewayTimeoutSeconds != 30 {
		t.Errorf("expected default gateway timeout of 30s, got %d", cfg.GatewayTimeoutSeconds)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestPilotDelayOrgs(t *testing.T) {
	cfg := &Config{PilotDelayOrgIDs: []string{"7f0f3c6e-98c4-4d30-9b1d-6cfd28b4a9e1", " ", ""}}
	ids, err := cfg.PilotDelayOrgs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 org id, got %d", len(ids))
	}

	cfg = &Config{PilotDelayOrgIDs: []string{"not-a-uuid"}}
	if _, err := cfg.PilotDelayOrgs(); err == nil {
		t.Fatal("expected error for malformed uuid")
	}
}
