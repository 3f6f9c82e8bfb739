package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./conditions.db", cfg.DB)
	assert.Equal(t, "localhost:3001", cfg.Addr)
	assert.Equal(t, 12, cfg.Conditions)
	assert.Equal(t, 0.95, cfg.PendingWeight)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
	assert.Equal(t, "", cfg.TraceFile)
	assert.Equal(t, "*", cfg.AllowedOrigin)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("COUNTERBALANCE_DB", "/tmp/study.db")
	t.Setenv("COUNTERBALANCE_CONDITIONS", "6")
	t.Setenv("COUNTERBALANCE_PENDING_WEIGHT", "0.8")
	t.Setenv("COUNTERBALANCE_RETRY_BACKOFF", "250ms")
	t.Setenv("COUNTERBALANCE_ALLOWED_ORIGIN", "https://jatos.example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/study.db", cfg.DB)
	assert.Equal(t, 6, cfg.Conditions)
	assert.Equal(t, 0.8, cfg.PendingWeight)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "https://jatos.example.org", cfg.AllowedOrigin)
	assert.Equal(t, 3, cfg.MaxAttempts, "unset fields keep defaults")
}

func TestLoad_MalformedValue(t *testing.T) {
	t.Setenv("COUNTERBALANCE_CONDITIONS", "twelve")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("COUNTERBALANCE_CONDITIONS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conditions must be >= 1")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty db", func(c *Config) { c.DB = "" }, "db path is required"},
		{"zero conditions", func(c *Config) { c.Conditions = 0 }, "conditions must be >= 1"},
		{"weight above one", func(c *Config) { c.PendingWeight = 1.5 }, "pending weight"},
		{"negative weight", func(c *Config) { c.PendingWeight = -0.1 }, "pending weight"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max attempts"},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }, "retry backoff"},
		{"negative busy timeout", func(c *Config) { c.BusyTimeout = -time.Second }, "busy timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Conditions = 0
	cfg.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conditions")
	assert.Contains(t, err.Error(), "max attempts")
}
