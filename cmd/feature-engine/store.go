// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/feature-engine/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and edit a feature store",
	Long: `Store operates on the feature database an extraction run produces. Use
subcommands to list stored keys, show metadata, export the inventory, or
delete entries so the next run recomputes them.`,
}

// --- list subcommand ---

var storeListCmd = &cobra.Command{
	Use:   "list STORE",
	Short: "List every key in the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.OpenReadOnly(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		keys, err := s.Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

// --- info subcommand ---

var storeInfoCmd = &cobra.Command{
	Use:   "info STORE [KEY]",
	Short: "Show store totals, or shape and size for one key",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.OpenReadOnly(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 2 {
			f, err := s.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("key:   %s\nshape: %v\nelems: %d\n", args[1], f.Shape, f.Elems())
			return nil
		}

		count, err := s.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("store: %s\nkeys:  %d\n", args[0], count)
		return nil
	},
}

// --- export subcommand ---

var storeExportCmd = &cobra.Command{
	Use:   "export STORE",
	Short: "Export the store inventory to YAML or JSON",
	Long: `Export writes the key inventory (key, shape, element count, dtype,
timestamp) to stdout or --output. Feature values stay in the store; the
export is for auditing completeness.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreExport,
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	s, err := store.OpenReadOnly(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "yaml", "":
		return s.ExportYAML(cmd.Context(), out)
	case "json":
		return s.ExportJSON(cmd.Context(), out)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

// --- delete subcommand ---

var storeDeleteCmd = &cobra.Command{
	Use:   "delete STORE KEY",
	Short: "Delete one key so the next run recomputes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Delete(cmd.Context(), args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[1])
		return nil
	},
}

func init() {
	storeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	storeExportCmd.Flags().String("output", "", "write to file instead of stdout")

	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeInfoCmd)
	storeCmd.AddCommand(storeExportCmd)
	storeCmd.AddCommand(storeDeleteCmd)

	rootCmd.AddCommand(storeCmd)
}
