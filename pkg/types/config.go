package types

import "time"

// HTTPConfig holds shared HTTP settings for components that talk to the
// inference server.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout. Inference calls may be
	// long-running (the server decodes and runs the model), so this is
	// typically minutes, not seconds.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "feature-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ServerConfig holds settings for the model inference server.
type ServerConfig struct {
	HTTPConfig `yaml:",inline"`

	// URL is the base URL of the inference server (e.g. "http://localhost:8901").
	URL string `json:"url" yaml:"url"`

	// APIKey is an optional bearer token for the inference server.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Image is an optional container image for a local inference server.
	// When set, the extract command starts the server before the run and
	// stops it afterwards.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// ExtractionConfig holds settings for one extraction run.
type ExtractionConfig struct {
	// Convention names the key derivation strategy for the dataset
	// ("" or "default", "webvid", "anetqa"). Unknown names fall back to
	// default with a warning.
	Convention string `json:"convention" yaml:"convention"`

	// Workers is the number of payload prefetch workers (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// BatchSize is the number of items per model invocation. The loop
	// writes one key per item, and the reference pipeline is fixed at 1;
	// the field exists so the invariant is stated rather than implied.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FuseConvBN asks the server to fuse conv and bn layers at checkpoint
	// load for slightly faster inference.
	FuseConvBN bool `json:"fuse_conv_bn" yaml:"fuse_conv_bn"`

	// AverageClips overrides the clip-averaging mode in the model config
	// ("score", "prob", or empty for the config's own setting).
	AverageClips string `json:"average_clips,omitempty" yaml:"average_clips,omitempty"`
}

// PipelineConfig groups the tool-level configuration.
type PipelineConfig struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
}
