// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the feature-engine CLI.
//
// feature-engine extracts per-item feature vectors from large media
// datasets through a remote inference server. Every pipeline stage is a
// subcommand: plan inspects what remains, extract runs the loop, store
// manages the output database.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/feature-engine/internal/secrets"
	"github.com/pdiddy/feature-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value
// for key if one was loaded.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the feature-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "feature-engine",
	Short: "Resumable batch feature extraction over an inference server",
	Long: `feature-engine walks a dataset manifest, runs each item through a model
inference server, and writes one feature vector per item into a local
store. Keys are derived from source paths, finished keys are skipped,
and an interrupted run resumes from wherever it stopped.

Each stage is a subcommand: plan computes the residual manifest, extract
runs the full loop, store inspects or edits the output database.`,
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

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./feature-engine.yaml or ~/.config/feature-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("feature-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "feature-engine"))
		}
	}

	viper.SetEnvPrefix("FEATURE_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("server.url", "http://localhost:8901")
	viper.SetDefault("server.timeout", 10*time.Minute)
	viper.SetDefault("server.max_retries", 5)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// serverConfig assembles the inference server settings from viper and
// loaded secrets.
func serverConfig() types.ServerConfig {
	return types.ServerConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("server.timeout"),
			UserAgent: viper.GetString("server.user_agent"),
		},
		URL:        viper.GetString("server.url"),
		APIKey:     secretDefault("inference-api-key", viper.GetString("server.api_key")),
		MaxRetries: viper.GetInt("server.max_retries"),
		Image:      viper.GetString("server.image"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
