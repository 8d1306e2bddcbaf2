// Package config merges flags, environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tokenscope/internal/feed"
	"tokenscope/internal/metadata"
	"tokenscope/internal/price"
	rpc "tokenscope/internal/solana"
)

// Default endpoint and tuning values.
const (
	DefaultFeedURL         = feed.DefaultURL
	DefaultRPCURL          = rpc.DefaultEndpoint
	DefaultCluster         = "devnet"
	DefaultPriceURL        = price.DefaultURL
	DefaultReconnectDelay  = 3 * time.Second
	DefaultMetadataTimeout = metadata.DefaultTimeout
	DefaultLogLevel        = "info"
)

// Reconnect backoff modes.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config holds settings shared by all commands.
type Config struct {
	FeedURL         string
	RPCURL          string
	Keypair         string
	Cluster         string
	ReconnectDelay  time.Duration
	Backoff         string
	MaxReconnects   int
	MetadataTimeout time.Duration
	PriceURL        string
	MetricsAddr     string
	LogLevel        string
}

// Load merges config file, environment variables (TOKENSCOPE_*), and
// flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("feed-url", DefaultFeedURL)
	v.SetDefault("rpc", DefaultRPCURL)
	v.SetDefault("keypair", "")
	v.SetDefault("cluster", DefaultCluster)
	v.SetDefault("reconnect-delay", DefaultReconnectDelay)
	v.SetDefault("backoff", BackoffFixed)
	v.SetDefault("max-reconnects", 0)
	v.SetDefault("metadata-timeout", DefaultMetadataTimeout)
	v.SetDefault("price-url", DefaultPriceURL)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("log-level", DefaultLogLevel)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("tokenscope")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		FeedURL:         v.GetString("feed-url"),
		RPCURL:          v.GetString("rpc"),
		Keypair:         v.GetString("keypair"),
		Cluster:         v.GetString("cluster"),
		ReconnectDelay:  v.GetDuration("reconnect-delay"),
		Backoff:         strings.ToLower(v.GetString("backoff")),
		MaxReconnects:   v.GetInt("max-reconnects"),
		MetadataTimeout: v.GetDuration("metadata-timeout"),
		PriceURL:        v.GetString("price-url"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c Config) Validate() error {
	if c.Backoff != BackoffFixed && c.Backoff != BackoffExponential {
		return fmt.Errorf("backoff must be %q or %q, got %q", BackoffFixed, BackoffExponential, c.Backoff)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect-delay must be positive")
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("metadata-timeout must be positive")
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("max-reconnects must not be negative")
	}
	return nil
}
