package config

import (
	"os"
	"strconv"
	"time"
)

// OrphanOrderPolicy decides what happens to a leaving participant's open
// orders.
type OrphanOrderPolicy string

const (
	// OrphanPolicyCreator reassigns open orders to the session creator.
	OrphanPolicyCreator OrphanOrderPolicy = "creator"
	// OrphanPolicyBlock rejects the leave until orders are transferred.
	OrphanPolicyBlock OrphanOrderPolicy = "block"
)

// Config holds all application configuration
type Config struct {
	Port        string
	DatabaseURL string

	// SplitInactivityWindow is how long a split session may sit without
	// payment activity before the sweeper cancels it.
	SplitInactivityWindow time.Duration
	// SweepInterval is how often the sweeper looks for stale split sessions.
	SweepInterval time.Duration

	OrphanOrderPolicy OrphanOrderPolicy

	// TaxRateBasisPoints is the tax rate applied to order subtotals,
	// in basis points (825 = 8.25%).
	TaxRateBasisPoints int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SplitInactivityWindow: getEnvDuration("SPLIT_INACTIVITY_WINDOW", 30*time.Minute),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", time.Minute),
		OrphanOrderPolicy:     orphanPolicy(getEnv("ORPHAN_ORDER_POLICY", string(OrphanPolicyCreator))),
		TaxRateBasisPoints:    getEnvInt("TAX_RATE_BASIS_POINTS", 0),
	}
}

func orphanPolicy(raw string) OrphanOrderPolicy {
	if OrphanOrderPolicy(raw) == OrphanPolicyBlock {
		return OrphanPolicyBlock
	}
	return OrphanPolicyCreator
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
