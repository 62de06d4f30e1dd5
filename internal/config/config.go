package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
)

const (
	StoreBackendGorm = "gorm"
	StoreBackendPgx  = "pgx"

	defaultDatabaseURL           = "sqlite://guestledger.db"
	defaultListenAddr            = ":8080"
	defaultAllowedOrigin         = "http://localhost:3000"
	defaultRequestTimeout        = 5 * time.Second
	defaultTimezone              = "UTC"
	defaultReportCacheTTL        = time.Minute
	defaultRegistrationRPS       = 2.0
	defaultRegistrationBurst     = 5
	defaultWelcomeBonus    int64 = 100
	defaultPurchaseRateBPS int64 = 100
	defaultLookbackDays          = 7
)

// Config aggregates runtime settings for guestledgerd.
type Config struct {
	DatabaseURL             string
	StoreBackend            string
	ListenAddr              string
	AllowedOrigins          []string
	RequestTimeout          time.Duration
	Timezone                string
	RedisAddr               string
	ReportCacheTTL          time.Duration
	RegistrationRPS         float64
	RegistrationBurst       int
	WelcomeBonus            int64
	PurchaseRateBasisPoints int64
	LookbackDays            int
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		DatabaseURL:             defaultDatabaseURL,
		StoreBackend:            StoreBackendGorm,
		ListenAddr:              defaultListenAddr,
		AllowedOrigins:          []string{defaultAllowedOrigin},
		RequestTimeout:          defaultRequestTimeout,
		Timezone:                defaultTimezone,
		ReportCacheTTL:          defaultReportCacheTTL,
		RegistrationRPS:         defaultRegistrationRPS,
		RegistrationBurst:       defaultRegistrationBurst,
		WelcomeBonus:            defaultWelcomeBonus,
		PurchaseRateBasisPoints: defaultPurchaseRateBPS,
		LookbackDays:            defaultLookbackDays,
	}
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreBackend = strings.ToLower(defaultIfEmpty(cfg.StoreBackend, StoreBackendGorm))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.Timezone = defaultIfEmpty(cfg.Timezone, defaultTimezone)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReportCacheTTL <= 0 {
		cfg.ReportCacheTTL = defaultReportCacheTTL
	}
	if cfg.RegistrationRPS <= 0 {
		cfg.RegistrationRPS = defaultRegistrationRPS
	}
	if cfg.RegistrationBurst <= 0 {
		cfg.RegistrationBurst = defaultRegistrationBurst
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	switch cfg.StoreBackend {
	case StoreBackendGorm:
	case StoreBackendPgx:
		if !isPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("store backend %q requires a postgres database url", StoreBackendPgx)
		}
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.WelcomeBonus < 0 {
		return fmt.Errorf("welcome bonus must not be negative")
	}
	if cfg.PurchaseRateBasisPoints < 0 {
		return fmt.Errorf("purchase rate must not be negative")
	}
	return nil
}

// Location resolves the configured business timezone.
func (cfg Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	return location, nil
}

// RegistrationPolicy converts the bonus settings into a loyalty policy.
func (cfg Config) RegistrationPolicy() loyalty.RegistrationPolicy {
	return loyalty.RegistrationPolicy{
		WelcomeBonus:            loyalty.Points(cfg.WelcomeBonus),
		PurchaseRateBasisPoints: cfg.PurchaseRateBasisPoints,
		LookbackWindow:          time.Duration(cfg.LookbackDays) * 24 * time.Hour,
	}
}

func isPostgresURL(raw string) bool {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
