package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipsyncd/ipsync"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaultRecheckSeconds matches the TTL placed on managed records.
const defaultRecheckSeconds = 300

type config struct {
	DomainName        string
	HostedZoneID      string
	RecheckSeconds    int
	Provider          string
	LookupURL         string
	AWSRegion         string
	CloudflareKeyFile string
	FixedIP           string
	LogLevel          string
}

// loadConfig merges, in increasing precedence: defaults, the config file at
// path (any format viper understands; the original deployment used JSON at
// /etc/default/aws_ip_sync.json), IPSYNC_* environment variables, and
// command-line flags. The result is validated before anything starts.
func loadConfig(path string, flags *pflag.FlagSet) (config, error) {
	v := viper.New()
	v.SetDefault("recheck-time", defaultRecheckSeconds)
	v.SetDefault("provider", "route53")
	v.SetDefault("ip-lookup-url", ipsync.DefaultLookupURL)
	v.SetDefault("cloudflare-key-file", defaultCloudflareKeyFile())
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("IPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := config{
		DomainName:        v.GetString("domain-name"),
		HostedZoneID:      v.GetString("hosted-zone-id"),
		RecheckSeconds:    v.GetInt("recheck-time"),
		Provider:          v.GetString("provider"),
		LookupURL:         v.GetString("ip-lookup-url"),
		AWSRegion:         v.GetString("aws-region"),
		CloudflareKeyFile: v.GetString("cloudflare-key-file"),
		FixedIP:           v.GetString("ip"),
		LogLevel:          v.GetString("log-level"),
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.DomainName == "" {
		return errors.New("domain-name is required")
	}
	if !strings.Contains(c.DomainName, ".") {
		return errors.New("domain-name must have at least one dot")
	}
	if c.HostedZoneID == "" {
		return errors.New("hosted-zone-id is required")
	}
	if c.RecheckSeconds <= 0 {
		return fmt.Errorf("recheck-time must be a positive number of seconds; got %d", c.RecheckSeconds)
	}
	switch c.Provider {
	case "route53", "cloudflare":
	default:
		return fmt.Errorf("unknown provider %q (expected route53 or cloudflare)", c.Provider)
	}
	return nil
}

func defaultCloudflareKeyFile() string {
	return filepath.Join(os.Getenv("HOME"), ".cloudflare")
}
