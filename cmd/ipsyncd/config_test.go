package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipsync.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"domain-name": "host.example.com.",
		"hosted-zone-id": "ZTESTZONE",
		"recheck-time": 60
	}`)

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "host.example.com.", cfg.DomainName)
	assert.Equal(t, "ZTESTZONE", cfg.HostedZoneID)
	assert.Equal(t, 60, cfg.RecheckSeconds)
	assert.Equal(t, "route53", cfg.Provider, "provider defaults to route53")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `{
		"domain-name": "host.example.com.",
		"hosted-zone-id": "ZTESTZONE"
	}`)
	t.Setenv("IPSYNC_RECHECK_TIME", "30")

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RecheckSeconds)
}

func TestConfigValidation(t *testing.T) {
	valid := config{
		DomainName:     "host.example.com.",
		HostedZoneID:   "ZTESTZONE",
		RecheckSeconds: 300,
		Provider:       "route53",
	}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*config)
	}{
		{"missing domain", func(c *config) { c.DomainName = "" }},
		{"domain without dot", func(c *config) { c.DomainName = "localhost" }},
		{"missing zone", func(c *config) { c.HostedZoneID = "" }},
		{"zero recheck time", func(c *config) { c.RecheckSeconds = 0 }},
		{"negative recheck time", func(c *config) { c.RecheckSeconds = -10 }},
		{"unknown provider", func(c *config) { c.Provider = "gandi" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
