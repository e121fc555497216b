// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset iterates a manifest and yields items with their file
// payloads loaded. Prefetch workers overlap disk I/O with inference, but
// delivery order always matches manifest order: the resume skip check is
// only meaningful against a deterministic stream.
package dataset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Item is one dataset element: the source identifier from the manifest
// and the payload the model consumes. The payload is opaque to the
// pipeline; only the inference server interprets it.
type Item struct {
	Source  string
	Payload []byte
}

// Options configures manifest iteration.
type Options struct {
	// BatchSize is the number of items per batch. Only 1 is supported;
	// the field exists so callers state the invariant instead of relying
	// on it silently.
	BatchSize int

	// Workers is the number of concurrent payload readers (default 1).
	Workers int

	// Shuffle must be false. Extraction depends on manifest order; the
	// option exists only to reject configs that ask for shuffling.
	Shuffle bool

	// TestMode marks the run as inference-only. It is forwarded to the
	// model server at checkpoint load.
	TestMode bool

	// Root, when set, is joined in front of relative manifest paths.
	Root string
}

func (o Options) validate() error {
	if o.Shuffle {
		return fmt.Errorf("shuffle is not supported: extraction requires manifest order")
	}
	if o.BatchSize != 0 && o.BatchSize != 1 {
		return fmt.Errorf("batch size %d is not supported: the pipeline invokes the model with one item per call", o.BatchSize)
	}
	return nil
}

// future is one in-flight payload read. done is closed by the worker
// that filled payload or err.
type future struct {
	source string
	path   string

	payload []byte
	err     error
	done    chan struct{}
}

// Stream yields items in manifest order. Use like bufio.Scanner:
//
//	for st.Scan() {
//		item := st.Item()
//	}
//	if err := st.Err(); err != nil { ... }
type Stream struct {
	ordered <-chan *future
	ctx     context.Context

	current Item
	err     error
	total   int
}

// Iterate opens the manifest and starts the prefetch workers. An empty
// manifest yields an empty stream, not an error: after planning, an
// empty residual manifest just means the run is already complete.
func Iterate(ctx context.Context, manifestPath string, opts Options) (*Stream, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	sources, err := readSources(manifestPath)
	if err != nil {
		return nil, err
	}

	ordered := make(chan *future, workers)
	work := make(chan *future, workers)

	go func() {
		defer close(ordered)
		defer close(work)
		for _, src := range sources {
			f := &future{
				source: src,
				path:   resolve(opts.Root, src),
				done:   make(chan struct{}),
			}
			select {
			case ordered <- f:
			case <-ctx.Done():
				return
			}
			select {
			case work <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func() {
			for f := range work {
				f.payload, f.err = os.ReadFile(f.path)
				if f.err != nil {
					f.err = fmt.Errorf("loading payload for %s: %w", f.source, f.err)
				}
				close(f.done)
			}
		}()
	}

	return &Stream{ordered: ordered, ctx: ctx, total: len(sources)}, nil
}

// Total returns the number of items the stream will yield.
func (st *Stream) Total() int {
	return st.total
}

// Scan advances to the next item. It returns false at the end of the
// stream or on the first error; Err distinguishes the two.
func (st *Stream) Scan() bool {
	if st.err != nil {
		return false
	}

	var f *future
	var ok bool
	select {
	case f, ok = <-st.ordered:
	case <-st.ctx.Done():
		st.err = st.ctx.Err()
		return false
	}
	if !ok {
		return false
	}

	select {
	case <-f.done:
	case <-st.ctx.Done():
		st.err = st.ctx.Err()
		return false
	}

	if f.err != nil {
		st.err = f.err
		return false
	}
	st.current = Item{Source: f.source, Payload: f.payload}
	return true
}

// Item returns the item read by the last successful Scan.
func (st *Stream) Item() Item {
	return st.current
}

// Err returns the first error encountered, or nil at a clean end.
func (st *Stream) Err() error {
	return st.err
}

// resolve joins root in front of relative sources. Absolute sources are
// used as-is so mixed manifests keep working.
func resolve(root, source string) string {
	if root == "" || filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(root, source)
}

// readSources reads the source identifier (first whitespace-delimited
// token) of every non-blank manifest line, in order.
func readSources(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	defer f.Close()

	var sources []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		sources = append(sources, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return sources, nil
}
