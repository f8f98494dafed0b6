// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the cafe-collector CLI.
// It collects cafe reviews city by city and exports them for Contentful.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cafe-collector/internal/logging"
	"github.com/pdiddy/cafe-collector/internal/secrets"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from the secrets directory at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the cafe-collector CLI.
var rootCmd = &cobra.Command{
	Use:   "cafe-collector",
	Short: "Collect, enrich and export cafe reviews",
	Long: `cafe-collector builds cafe reviews for a list of cities. For each city it
asks a language model for notable cafes, enriches every cafe with scores and
narrative, geocodes its address, assigns a unique slug and validates the result.
Reviews are exported as a Contentful import file and optionally as a
spreadsheet for manual audit.

Progress is checkpointed after every cafe; rerunning collect resumes where an
interrupted run stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading .env: %w", err)
		}
		if err := logging.Setup(viper.GetString("log_level")); err != nil {
			return err
		}

		s, err := secrets.Load(viper.GetString("secrets_dir"))
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			slog.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./cafe-collector.yaml or ~/.config/cafe-collector/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("cache-dir", "", "directory holding the cache database and checkpoint (default .cache)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("cache.dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	setDefaults(types.DefaultConfig())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cafe-collector")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "cafe-collector"))
		}
	}

	viper.SetEnvPrefix("CAFE_COLLECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so environment variables such as
// CAFE_COLLECTOR_LLM_MODEL are seen by Unmarshal.
func setDefaults(d types.Config) {
	viper.SetDefault("secrets_dir", secrets.DefaultDir)

	viper.SetDefault("llm.provider", string(d.LLM.Provider))
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.temperature", d.LLM.Temperature)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	viper.SetDefault("llm.timeout", d.LLM.Timeout)
	viper.SetDefault("llm.user_agent", d.LLM.UserAgent)
	viper.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)
	viper.SetDefault("llm.endpoint", "")

	viper.SetDefault("geocode.api_key", "")
	viper.SetDefault("geocode.timeout", d.Geocode.Timeout)
	viper.SetDefault("geocode.user_agent", d.Geocode.UserAgent)
	viper.SetDefault("geocode.requests_per_minute", d.Geocode.RequestsPerMinute)
	viper.SetDefault("geocode.endpoint", "")

	viper.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	viper.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	viper.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	viper.SetDefault("retry.jitter", d.Retry.Jitter)

	viper.SetDefault("cache.backend", string(d.Cache.Backend))
	viper.SetDefault("cache.dir", d.Cache.Dir)
	viper.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	viper.SetDefault("cache.redis_prefix", d.Cache.RedisPrefix)
	viper.SetDefault("cache.api_response_ttl", d.Cache.APIResponseTTL)
	viper.SetDefault("cache.processed_ttl", d.Cache.ProcessedTTL)
	viper.SetDefault("cache.geocoding_ttl", d.Cache.GeocodingTTL)

	viper.SetDefault("export.output_dir", d.Export.OutputDir)
	viper.SetDefault("export.space_id", "")
	viper.SetDefault("export.locale", d.Export.Locale)
	viper.SetDefault("export.author_name", d.Export.AuthorName)
}

// loadConfig decodes the merged configuration. Credentials not set by the
// config file or CAFE_COLLECTOR_* variables fall back to the conventional
// environment variables, then to the secrets directory.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: decoding config: %v", types.ErrFatalConfig, err)
	}
	// An empty --cache-dir flag overrides the default through BindPFlag.
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = types.DefaultConfig().Cache.Dir
	}

	envDefault := func(dst *string, name string) {
		if *dst == "" {
			*dst = os.Getenv(name)
		}
	}
	switch cfg.LLM.Provider {
	case types.ProviderAnthropic:
		envDefault(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	default:
		envDefault(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	}
	envDefault(&cfg.Geocode.APIKey, "GOOGLE_MAPS_API_KEY")
	envDefault(&cfg.Export.SpaceID, "CONTENTFUL_SPACE_ID")
	secrets.Apply(&cfg, loadedSecrets)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
