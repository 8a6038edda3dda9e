package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "securevote-salt-2024", cfg.Salt)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, uint64(100000), cfg.BloomCapacity)
	assert.Equal(t, 0.01, cfg.BloomErrorRate)
	assert.Equal(t, 10000, cfg.AuditStackMax)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Empty(t, cfg.DataDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SECUREVOTE_SALT", "env-salt")
	t.Setenv("SECUREVOTE_DEMO_MODE", "false")
	t.Setenv("SECUREVOTE_BLOOM_CAPACITY", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-salt", cfg.Salt)
	assert.False(t, cfg.DemoMode)
	assert.Equal(t, uint64(500), cfg.BloomCapacity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty salt", mutate: func(c *Config) { c.Salt = "" }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.BloomCapacity = 0 }, wantErr: true},
		{name: "error rate too high", mutate: func(c *Config) { c.BloomErrorRate = 1.5 }, wantErr: true},
		{name: "error rate zero", mutate: func(c *Config) { c.BloomErrorRate = 0 }, wantErr: true},
		{name: "negative stack", mutate: func(c *Config) { c.AuditStackMax = -1 }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.QueueSize = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Salt:           "salt",
				BloomCapacity:  1000,
				BloomErrorRate: 0.01,
				AuditStackMax:  100,
				QueueSize:      16,
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
