package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liteEnvVars = []string{
	"CDS_DATA_DIR",
	"CDS_SESSION_CACHE_ITEMS",
	"CDS_SESSION_TTL",
	"CDS_ALERT_THRESHOLD",
	"CDS_CATALOG_FILE",
	"CDS_ENGINE_VERSION",
	"CDS_MODEL_VERSION",
	"CDS_MAX_RECOMMENDATIONS",
	"CDS_TRANSPORT",
	"CDS_LOG_LEVEL",
	"CDS_LOG_FORMAT",
}

// clearLiteEnv blanks every variable; LoadLiteConfig treats empty as unset.
func clearLiteEnv(t *testing.T) {
	t.Helper()
	for _, v := range liteEnvVars {
		t.Setenv(v, "")
	}
}

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1024, cfg.SessionCacheItems)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0.7, cfg.AlertThreshold)
	assert.Equal(t, 15, cfg.MaxRecommendations)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearLiteEnv(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, DefaultLiteConfig(), cfg)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearLiteEnv(t)
	t.Setenv("CDS_DATA_DIR", "/tmp/test-cds")
	t.Setenv("CDS_SESSION_CACHE_ITEMS", "500")
	t.Setenv("CDS_SESSION_TTL", "12h")
	t.Setenv("CDS_ALERT_THRESHOLD", "0.85")
	t.Setenv("CDS_MAX_RECOMMENDATIONS", "5")
	t.Setenv("CDS_CATALOG_FILE", "/etc/cds/catalog.yaml")
	t.Setenv("CDS_MODEL_VERSION", "rules-v2")
	t.Setenv("CDS_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-cds", cfg.DataDir)
	assert.Equal(t, 500, cfg.SessionCacheItems)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0.85, cfg.AlertThreshold)
	assert.Equal(t, 5, cfg.MaxRecommendations)
	assert.Equal(t, "/etc/cds/catalog.yaml", cfg.CatalogFile)
	assert.Equal(t, "rules-v2", cfg.ModelVersion)
	assert.Equal(t, "1.0.0", cfg.EngineVersion)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_IgnoresInvalidValues(t *testing.T) {
	clearLiteEnv(t)
	t.Setenv("CDS_SESSION_CACHE_ITEMS", "-3")
	t.Setenv("CDS_SESSION_TTL", "forever")
	t.Setenv("CDS_ALERT_THRESHOLD", "1.5")
	t.Setenv("CDS_MAX_RECOMMENDATIONS", "0")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1024, cfg.SessionCacheItems)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0.7, cfg.AlertThreshold)
	assert.Equal(t, 15, cfg.MaxRecommendations)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.cds-server"}

	assert.Equal(t, "/home/user/.cds-server/compliance.db", cfg.ComplianceDBPath())
	assert.Equal(t, "/home/user/.cds-server/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "cds")}

	require.NoError(t, cfg.EnsureDataDir())

	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, cfg.ExportDir())
}
