// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package model talks to the inference server that runs the trained
// network. The pipeline treats the model as an opaque function from
// payload bytes to one fixed-shape feature; weights are loaded once,
// before the first inference, and every call runs with gradients
// disabled on the server side.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/feature-engine/internal/httputil"
	"github.com/pdiddy/feature-engine/pkg/types"
)

// Model is the inference collaborator: one payload in, one feature out.
// Implementations must not influence pipeline control flow beyond
// returning an error; skip decisions belong to the extraction loop.
type Model interface {
	Infer(ctx context.Context, payload []byte) (types.Feature, error)
}

// CheckpointRequest asks the server to build the model and load weights.
type CheckpointRequest struct {
	// Checkpoint is the weights path, resolved on the server.
	Checkpoint string `json:"checkpoint"`

	// Model is the model configuration subtree, pretrained entries
	// already nulled out.
	Model map[string]any `json:"model"`

	// FuseConvBN fuses conv and bn layers for slightly faster inference.
	FuseConvBN bool `json:"fuse_conv_bn"`

	// TestMode puts the model in eval mode (no gradients, no training
	// state).
	TestMode bool `json:"test_mode"`
}

// inferResponse is the wire form of one feature.
type inferResponse struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

const (
	defaultTimeout   = 10 * time.Minute
	defaultUserAgent = "feature-engine/0.1"
)

// Client is an HTTP client for the inference server.
type Client struct {
	cfg  types.ServerConfig
	http *http.Client
}

// NewClient builds a client from server configuration. The timeout
// applies per request; inference can be GPU-bound and slow, so the
// default is generous.
func NewClient(cfg types.ServerConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// LoadCheckpoint sends the model config and checkpoint path to the
// server and waits until the weights are loaded. It must succeed before
// the first Infer call; a failure here is a configuration problem, not a
// resumable inference failure.
func (c *Client) LoadCheckpoint(ctx context.Context, req CheckpointRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding checkpoint request: %w", err)
	}

	resp, err := c.post(ctx, "/v1/checkpoint", "application/json", body)
	if err != nil {
		return fmt.Errorf("loading checkpoint %s: %w", req.Checkpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("loading checkpoint %s: %s", req.Checkpoint, readError(resp))
	}
	return nil
}

// Infer runs the model on one item's payload and returns the raw
// feature, leading batch dimension included. Failures propagate to the
// caller untouched; the extraction loop aborts on them so a resumed run
// can retry the same item.
func (c *Client) Infer(ctx context.Context, payload []byte) (types.Feature, error) {
	resp, err := c.post(ctx, "/v1/infer", "application/octet-stream", payload)
	if err != nil {
		return types.Feature{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Feature{}, fmt.Errorf("inference server: %s", readError(resp))
	}

	var wire inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return types.Feature{}, fmt.Errorf("decoding inference response: %w", err)
	}

	f := types.Feature{Shape: wire.Shape, Data: wire.Data}
	if err := f.Validate(); err != nil {
		return types.Feature{}, fmt.Errorf("inference response: %w", err)
	}
	return f, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	return httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
}

// readError summarizes a non-200 response for an error message.
func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := string(bytes.TrimSpace(body))
	if msg == "" {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)
}
