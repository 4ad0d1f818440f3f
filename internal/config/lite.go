package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the compliance database and exports

	// Session cache
	SessionCacheItems int           // Maximum sessions held in memory
	SessionTTL        time.Duration // Session lifetime

	// Pipeline
	AlertThreshold     float64 // Risk score above which a safety alert fires
	MaxRecommendations int     // Used when a request leaves the cap unset
	CatalogFile        string  // Optional clinical catalog override (YAML)
	EngineVersion      string
	ModelVersion       string

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cds-server")

	return &LiteConfig{
		DataDir:            dataDir,
		SessionCacheItems:  1024,
		SessionTTL:         time.Hour,
		AlertThreshold:     0.7,
		MaxRecommendations: 15,
		EngineVersion:      "1.0.0",
		ModelVersion:       "rules-v1",
		Transport:          "stdio",
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set or unparsable.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("CDS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("CDS_SESSION_CACHE_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionCacheItems = n
		}
	}
	if v := os.Getenv("CDS_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}

	if v := os.Getenv("CDS_ALERT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.AlertThreshold = f
		}
	}
	if v := os.Getenv("CDS_MAX_RECOMMENDATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRecommendations = n
		}
	}
	cfg.CatalogFile = os.Getenv("CDS_CATALOG_FILE")
	if v := os.Getenv("CDS_ENGINE_VERSION"); v != "" {
		cfg.EngineVersion = v
	}
	if v := os.Getenv("CDS_MODEL_VERSION"); v != "" {
		cfg.ModelVersion = v
	}

	if v := os.Getenv("CDS_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	if v := os.Getenv("CDS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CDS_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ComplianceDBPath returns the path to the audit/usage SQLite database.
func (c *LiteConfig) ComplianceDBPath() string {
	return filepath.Join(c.DataDir, "compliance.db")
}

// ExportDir returns the directory for audit exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
