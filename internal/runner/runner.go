// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner drives the extraction loop: pull an item, derive its
// key, skip it if the store already has it, otherwise infer, squeeze,
// and write. One item at a time, one committed write per item — that
// discipline is what makes an interrupted run resumable.
package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/feature-engine/internal/dataset"
	"github.com/pdiddy/feature-engine/internal/keys"
	"github.com/pdiddy/feature-engine/internal/model"
	"github.com/pdiddy/feature-engine/internal/store"
)

// ItemStream is the loader-facing contract: a blocking, ordered pull
// iterator. dataset.Stream satisfies it.
type ItemStream interface {
	Scan() bool
	Item() dataset.Item
	Err() error
	Total() int
}

// Report summarizes one extraction run. Computed plus Skipped equals the
// number of items traversed.
type Report struct {
	Computed int
	Skipped  int
	Total    int
}

// Run processes the stream in order. The store skip check runs for every
// item even though planning already filtered the manifest: it is the
// last line of defense against a stale residual manifest or a
// convention drifting between plan time and run time.
//
// A model failure is not caught. It aborts the loop with the failing
// item named in the error, leaving every prior write committed, which is
// exactly the state a resumed run needs.
func Run(ctx context.Context, m model.Model, stream ItemStream, s *store.Store, parser keys.Func, w io.Writer) (Report, error) {
	var rep Report
	total := stream.Total()

	for stream.Scan() {
		item := stream.Item()
		key := parser(item.Source)

		done, err := s.Contains(ctx, key)
		if err != nil {
			return rep, err
		}
		if done {
			rep.Skipped++
			fmt.Fprintf(w, "skipped %s [%d/%d]\n", key, rep.Computed+rep.Skipped, total)
			continue
		}

		raw, err := m.Infer(ctx, item.Payload)
		if err != nil {
			return rep, fmt.Errorf("extracting %s (key %q): %w", item.Source, key, err)
		}

		feature, err := raw.Squeeze()
		if err != nil {
			return rep, fmt.Errorf("extracting %s (key %q): %w", item.Source, key, err)
		}

		if err := s.Put(ctx, key, feature); err != nil {
			return rep, fmt.Errorf("storing %s (key %q): %w", item.Source, key, err)
		}

		rep.Computed++
		fmt.Fprintf(w, "extracted %s %v [%d/%d]\n", key, feature.Shape, rep.Computed+rep.Skipped, total)
	}
	if err := stream.Err(); err != nil {
		return rep, err
	}

	rep.Total = rep.Computed + rep.Skipped
	fmt.Fprintf(w, "\nExtraction summary: %d extracted, %d skipped (total: %d)\n",
		rep.Computed, rep.Skipped, rep.Total)
	return rep, nil
}
