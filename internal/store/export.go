// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// ExportEntry describes one stored feature for inventory export. The
// feature values stay in the store; the export carries key, shape, and
// size so a reader can audit completeness without loading blobs.
type ExportEntry struct {
	Key       string `json:"key" yaml:"key"`
	Shape     []int  `json:"shape" yaml:"shape"`
	Elems     int    `json:"elems" yaml:"elems"`
	DType     string `json:"dtype" yaml:"dtype"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

// ExportYAML writes the store inventory to w as YAML.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the store inventory to w as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func (s *Store) exportEntries(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, shape, dtype, length(data), created_at FROM features ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	defer rows.Close()

	entries := []ExportEntry{}
	for rows.Next() {
		var e ExportEntry
		var shapeJSON string
		var blobLen int
		if err := rows.Scan(&e.Key, &shapeJSON, &e.DType, &blobLen, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		if err := json.Unmarshal([]byte(shapeJSON), &e.Shape); err != nil {
			return nil, fmt.Errorf("decoding shape for key %q: %w", e.Key, err)
		}
		e.Elems = blobLen / 4
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
