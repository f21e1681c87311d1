package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ipsyncd/ipsync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "ipsyncd",
	Short:         "Keep a DNS A record pointed at this host's public IP address",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to config file")
	flags.String("domain-name", "", "fully-qualified host name to manage")
	flags.String("hosted-zone-id", "", "ID of the DNS zone containing the record")
	flags.Int("recheck-time", defaultRecheckSeconds, "seconds between IP checks")
	flags.String("provider", "route53", "DNS provider (route53 or cloudflare)")
	flags.String("ip-lookup-url", ipsync.DefaultLookupURL, "public IP lookup service URL")
	flags.String("aws-region", "", "AWS region override for the Route 53 client")
	flags.String("cloudflare-key-file", defaultCloudflareKeyFile(), "path to Cloudflare API token file")
	flags.String("ip", "", "skip the IP lookup and use this address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("ipsyncd exiting")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	opts := []ipsync.Option{
		ipsync.WithLogger(logger),
		ipsync.WithInterval(time.Duration(cfg.RecheckSeconds) * time.Second),
	}

	switch cfg.Provider {
	case "route53":
		opts = append(opts, ipsync.UsingRoute53(cfg.AWSRegion))
	case "cloudflare":
		token, err := cloudflareToken(cfg.CloudflareKeyFile, logger)
		if err != nil {
			return err
		}
		opts = append(opts, ipsync.UsingCloudflare(token))
	}

	if cfg.FixedIP != "" {
		opts = append(opts, ipsync.UsingResolver(ipsync.FromString(cfg.FixedIP)))
	} else {
		opts = append(opts, ipsync.UsingWebResolver(cfg.LookupURL))
	}

	client, err := ipsync.New(cfg.DomainName, cfg.HostedZoneID, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"domain":   cfg.DomainName,
		"zone":     cfg.HostedZoneID,
		"interval": cfg.RecheckSeconds,
		"provider": cfg.Provider,
	}).Info("starting")

	if err := client.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
