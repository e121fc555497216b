// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/feature-engine/internal/keys"
	"github.com/pdiddy/feature-engine/internal/modelcfg"
	"github.com/pdiddy/feature-engine/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan CONFIG OUTPUT",
	Short: "Show what a run against OUTPUT would still extract",
	Long: `Plan reads the dataset manifest from the model config, filters out every
item whose key already exists in the OUTPUT store, and writes the
residual manifest. Nothing is extracted; this is the dry-run surface for
the resume logic.`,
	Args: cobra.ExactArgs(2),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	configPath, output := args[0], args[1]

	tree, err := modelcfg.Load(configPath)
	if err != nil {
		return err
	}
	cfgOptions, _ := cmd.Flags().GetStringArray("cfg-options")
	if err := modelcfg.Merge(tree, cfgOptions); err != nil {
		return err
	}

	annFile := modelcfg.StringAt(tree, "data.test.ann_file")
	if annFile == "" {
		return fmt.Errorf("config %s: data.test.ann_file is required", configPath)
	}

	convention, _ := cmd.Flags().GetString("dataset")
	parser := keys.Parser(convention, os.Stderr)

	result, err := plan.Plan(cmd.Context(), annFile, parser, output, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Printf("Residual manifest: %s\n", result.ManifestPath)
	return nil
}

func init() {
	planCmd.Flags().String("dataset", "", "key derivation convention: default, webvid, or anetqa")
	planCmd.Flags().StringArray("cfg-options", nil, "model config overrides as key.path=value (repeatable)")

	rootCmd.AddCommand(planCmd)
}
