package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Port                    string   `mapstructure:"PORT"`
	Env                     string   `mapstructure:"ENV"`
	DatabaseURL             string   `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32    `mapstructure:"DB_MIN_CONNS"`
	GatewayBaseURL          string   `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAPIKey           string   `mapstructure:"GATEWAY_API_KEY"`
	GatewayTimeoutSeconds   int      `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	MemberBillingOffsetDays int      `mapstructure:"MEMBER_BILLING_OFFSET_DAYS"`
	PilotDelayOrgIDs        []string `mapstructure:"PILOT_DELAY_ORG_IDS"`
	AuthJWTSecret           string   `mapstructure:"AUTH_JWT_SECRET"`
	CORSOrigins             []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	v.SetDefault("MEMBER_BILLING_OFFSET_DAYS", 7)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("GATEWAY_BASE_URL")
	v.BindEnv("GATEWAY_API_KEY")
	v.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	v.BindEnv("MEMBER_BILLING_OFFSET_DAYS")
	v.BindEnv("PILOT_DELAY_ORG_IDS")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.PilotDelayOrgIDs == nil {
		if ids := v.GetString("PILOT_DELAY_ORG_IDS"); ids != "" {
			cfg.PilotDelayOrgIDs = strings.Split(ids, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// PilotDelayOrgs parses PILOT_DELAY_ORG_IDS into organization UUIDs,
// rejecting anything malformed rather than silently dropping it.
func (c *Config) PilotDelayOrgs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.PilotDelayOrgIDs))
	for _, raw := range c.PilotDelayOrgIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("PILOT_DELAY_ORG_IDS: invalid uuid %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
