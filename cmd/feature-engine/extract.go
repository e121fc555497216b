// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/feature-engine/internal/container"
	"github.com/pdiddy/feature-engine/internal/dataset"
	"github.com/pdiddy/feature-engine/internal/keys"
	"github.com/pdiddy/feature-engine/internal/model"
	"github.com/pdiddy/feature-engine/internal/modelcfg"
	"github.com/pdiddy/feature-engine/internal/plan"
	"github.com/pdiddy/feature-engine/internal/runner"
	"github.com/pdiddy/feature-engine/internal/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract CONFIG CHECKPOINT OUTPUT",
	Short: "Extract features for every item in the dataset manifest",
	Long: `Extract loads the model config, sends the checkpoint to the inference
server, and walks the dataset manifest item by item. Items whose key
already exists in the output store are skipped, so re-running the same
command resumes an interrupted extraction.

CONFIG is the model configuration YAML, CHECKPOINT the weights path
resolved on the server, and OUTPUT the feature store database.`,
	Args: cobra.ExactArgs(3),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	configPath, checkpoint, output := args[0], args[1], args[2]

	launcher, _ := cmd.Flags().GetString("launcher")
	if launcher != "none" {
		return fmt.Errorf("distributed extraction is not implemented")
	}

	tree, err := modelcfg.Load(configPath)
	if err != nil {
		return err
	}
	cfgOptions, _ := cmd.Flags().GetStringArray("cfg-options")
	if err := modelcfg.Merge(tree, cfgOptions); err != nil {
		return err
	}

	averageClips, _ := cmd.Flags().GetString("average-clips")
	if averageClips != "" {
		if averageClips != "score" && averageClips != "prob" {
			return fmt.Errorf("unsupported --average-clips %q: use score or prob", averageClips)
		}
		if err := modelcfg.SetAverageClips(tree, averageClips); err != nil {
			return err
		}
	}

	// The checkpoint carries the weights; nested pretrained entries
	// would only make the server download weights it then discards.
	modelcfg.DisablePretrained(tree)

	annFile := modelcfg.StringAt(tree, "data.test.ann_file")
	if annFile == "" {
		return fmt.Errorf("config %s: data.test.ann_file is required", configPath)
	}
	root := modelcfg.StringAt(tree, "data.test.data_prefix")

	workers, _ := cmd.Flags().GetInt("workers")
	if workers == 0 {
		workers = modelcfg.IntAt(tree, "data.workers_per_gpu", 1)
	}

	convention, _ := cmd.Flags().GetString("dataset")
	parser := keys.Parser(convention, os.Stderr)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	planned, err := plan.Plan(ctx, annFile, parser, output, os.Stdout)
	if err != nil {
		return err
	}

	cfg := serverConfig()
	if cfg.Image != "" {
		stop, err := startServer(cfg.Image, cfg.URL)
		if err != nil {
			return err
		}
		defer stop()
	}

	client := model.NewClient(cfg)
	fuseConvBN, _ := cmd.Flags().GetBool("fuse-conv-bn")
	err = client.LoadCheckpoint(ctx, model.CheckpointRequest{
		Checkpoint: checkpoint,
		Model:      modelcfg.ModelSubtree(tree),
		FuseConvBN: fuseConvBN,
		TestMode:   true,
	})
	if err != nil {
		return err
	}

	stream, err := dataset.Iterate(ctx, planned.ManifestPath, dataset.Options{
		Workers:  workers,
		Root:     root,
		TestMode: true,
	})
	if err != nil {
		return err
	}

	s, err := store.Open(output)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = runner.Run(ctx, client, stream, s, parser, os.Stdout)
	return err
}

// startServer launches a local inference server container listening on
// the port from serverURL and returns a function that stops it.
func startServer(image, serverURL string) (func(), error) {
	rt, err := container.DetectRuntime()
	if err != nil {
		return nil, err
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, err
	}

	port := "8901"
	if u, err := url.Parse(serverURL); err == nil && u.Port() != "" {
		port = u.Port()
	}

	id, err := rt.Start(image, port)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Started inference server %s (%s)\n", id, rt.Name())

	return func() {
		if err := rt.Stop(id); err != nil {
			fmt.Fprintf(os.Stderr, "warning: stopping inference server: %v\n", err)
		}
	}, nil
}

func init() {
	extractCmd.Flags().String("dataset", "", "key derivation convention: default, webvid, or anetqa")
	extractCmd.Flags().StringArray("cfg-options", nil, "model config overrides as key.path=value (repeatable)")
	extractCmd.Flags().Int("workers", 0, "payload prefetch workers (0 = use config's data.workers_per_gpu)")
	extractCmd.Flags().Bool("fuse-conv-bn", false, "fuse conv and bn layers at checkpoint load")
	extractCmd.Flags().String("average-clips", "", "override clip-averaging mode: score or prob")
	extractCmd.Flags().String("launcher", "none", "job launcher (only none is supported)")

	rootCmd.AddCommand(extractCmd)
}
