// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the report-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if set, else the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the report-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "report-engine",
	Short: "Automated multi-section research report generation",
	Long: `report-engine generates multi-section research reports from a topic by
orchestrating language-model and web-search calls through a fixed
pipeline: plan, outline, per-section research, drafting, optional
validation, and compilation.

The run subcommand executes the whole pipeline; cache manages the
external-call cache that memoizes generation and search results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
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
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./report-engine.yaml or ~/.config/report-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("report-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "report-engine"))
		}
	}

	viper.SetEnvPrefix("REPORT_ENGINE")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	viper.SetDefault("generation.provider", string(types.ProviderAnthropic))
	viper.SetDefault("generation.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("generation.fallback_model", "claude-3-5-haiku-20241022")
	viper.SetDefault("generation.timeout", 60*time.Second)
	viper.SetDefault("generation.max_tokens", 4096)
	viper.SetDefault("generation.max_retries", 3)
	viper.SetDefault("generation.max_concurrent", 4)
	viper.SetDefault("generation.user_agent", "report-engine/"+version)

	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.max_results", 3)
	viper.SetDefault("search.max_concurrent", 4)
	viper.SetDefault("search.max_retries", 3)
	viper.SetDefault("search.user_agent", "report-engine/"+version)

	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("cache.memory_entries", 1000)
	viper.SetDefault("cache.ttl", time.Hour)

	viper.SetDefault("options.enable_validation", true)
	viper.SetDefault("options.strict_validation", false)
	viper.SetDefault("options.max_section_concurrency", 4)
	viper.SetDefault("options.per_call_timeout", 90*time.Second)
	viper.SetDefault("options.max_retries", 3)
}

// loadConfig unmarshals the viper state and fills API keys from secrets.
func loadConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}

	switch cfg.Generation.Provider {
	case types.ProviderGemini:
		cfg.Generation.APIKey = secretDefault(secrets.GeminiAPIKey, cfg.Generation.APIKey)
	default:
		cfg.Generation.APIKey = secretDefault(secrets.AnthropicAPIKey, cfg.Generation.APIKey)
	}
	cfg.Search.APIKey = secretDefault(secrets.TavilyAPIKey, cfg.Search.APIKey)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
