// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan computes the residual worklist for a resumed extraction
// run. Given the full manifest and an existing store, it keeps only the
// lines whose derived keys are absent and materializes them as a new
// manifest for the dataset loader. The residual manifest is a snapshot
// of store state at plan time and is private to one invocation; reusing
// it later would skip items that have since been deleted or recompute
// ones already done.
package plan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/feature-engine/internal/keys"
	"github.com/pdiddy/feature-engine/internal/store"
)

// Result describes the planning outcome.
type Result struct {
	// ManifestPath is the manifest the loader should iterate: the
	// original on a first run, or the residual manifest after filtering.
	ManifestPath string

	// Filtered reports whether a residual manifest was written.
	Filtered bool

	// Retained and Total count manifest lines after and before filtering.
	// On a first run both equal the full manifest length.
	Retained int
	Total    int
}

// Plan reads the manifest at manifestPath, probes the store at storePath,
// and returns the manifest the loader should use. A missing store file
// means a first run and the original manifest is returned unmodified.
// A missing or empty manifest is a configuration error: there is nothing
// meaningful to extract and continuing silently would hide a bad path.
func Plan(ctx context.Context, manifestPath string, parser keys.Func, storePath string, w io.Writer) (Result, error) {
	lines, err := readManifest(manifestPath)
	if err != nil {
		return Result{}, err
	}

	if _, err := os.Stat(storePath); err != nil {
		if os.IsNotExist(err) {
			return Result{ManifestPath: manifestPath, Retained: len(lines), Total: len(lines)}, nil
		}
		return Result{}, fmt.Errorf("checking store %s: %w", storePath, err)
	}

	s, err := store.OpenReadOnly(storePath)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()

	done, err := s.KeySet(ctx)
	if err != nil {
		return Result{}, err
	}

	var retained []string
	for _, line := range lines {
		if !done[parser(sourceToken(line))] {
			retained = append(retained, line)
		}
	}

	residualPath, err := writeResidual(manifestPath, retained)
	if err != nil {
		return Result{}, err
	}

	fmt.Fprintf(w, "Found %s. Remain %d/%d\n", storePath, len(retained), len(lines))

	return Result{
		ManifestPath: residualPath,
		Filtered:     true,
		Retained:     len(retained),
		Total:        len(lines),
	}, nil
}

// sourceToken returns the first whitespace-delimited token of a manifest
// line: the source identifier. The rest of the line (labels, frame
// counts) belongs to the loader and is preserved verbatim.
func sourceToken(line string) string {
	return strings.Fields(line)[0]
}

// readManifest reads the manifest's non-blank lines in order.
func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("manifest %s is empty: no items to extract", path)
	}
	return lines, nil
}

// writeResidual writes the retained lines, in original order, to a
// single-use manifest in the temp directory. The uuid keeps concurrent
// invocations against different stores from clobbering each other.
func writeResidual(manifestPath string, retained []string) (string, error) {
	name := fmt.Sprintf("residual-%s-%s", uuid.NewString()[:8], filepath.Base(manifestPath))
	path := filepath.Join(os.TempDir(), name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating residual manifest %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	for _, line := range retained {
		fmt.Fprintln(bw, line)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("writing residual manifest %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing residual manifest %s: %w", path, err)
	}
	return path, nil
}
