// Package config holds the rollarc configuration, loaded from a TOML file
// with application defaults applied first. Command-line flag overrides are
// applied by the caller after loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rollarc/rollarc/helpers"
)

// S3Config holds object store configuration.
type S3Config struct {
	Endpoint string `toml:"endpoint"`
	// AccessKey and SecretKey are optional. When both are set the client
	// authenticates with them; otherwise the AWS credential chain
	// (environment, shared credentials file, IAM role) is used.
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	// Folder is an optional key prefix. When set, objects are stored
	// under "<folder>/<file base name>".
	Folder string `toml:"folder"`
	UseTLS bool   `toml:"use_tls"`
	Trace  bool   `toml:"trace"`
}

// RotationConfig holds fixed-window rotation configuration.
type RotationConfig struct {
	// File is the active log file. Archives are File.1 .. File.MaxIndex.
	File     string `toml:"file"`
	MaxSize  string `toml:"max_size"`
	MinIndex int    `toml:"min_index"`
	MaxIndex int    `toml:"max_index"`
}

// UploaderConfig holds upload worker configuration.
type UploaderConfig struct {
	// QueueSize bounds the upload queue. The default of 0 keeps the queue
	// unbounded so Submit never blocks the rotation path; memory grows
	// without limit if uploads lag rotations indefinitely. A positive
	// value bounds the queue and makes Submit block once it is full.
	QueueSize int `toml:"queue_size"`
	// DrainTimeout bounds the wait for outstanding uploads on shutdown.
	DrainTimeout string `toml:"drain_timeout"`
}

// PolicyConfig holds rolling policy configuration.
type PolicyConfig struct {
	// RollingOnExit selects the terminal archival action: a final rollover
	// plus upload of the rotated file when true, a direct upload of the
	// active file when false.
	RollingOnExit bool `toml:"rolling_on_exit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Output is "stderr", "stdout", "syslog" or a file path.
	Output string `toml:"output"`
	// Format is "console" or "json".
	Format string `toml:"format"`
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level"`
}

// MetricsConfig holds the Prometheus exposition endpoint configuration.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `toml:"addr"`
}

// Config holds all configuration for the application.
type Config struct {
	S3       S3Config       `toml:"s3"`
	Rotation RotationConfig `toml:"rotation"`
	Uploader UploaderConfig `toml:"uploader"`
	Policy   PolicyConfig   `toml:"policy"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			UseTLS:   true,
		},
		Rotation: RotationConfig{
			File:     "rollarc.log",
			MaxSize:  "10mb",
			MinIndex: 1,
			MaxIndex: 7,
		},
		Uploader: UploaderConfig{
			QueueSize:    0,
			DrainTimeout: "10m",
		},
		Policy: PolicyConfig{
			RollingOnExit: true,
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
	}
}

// LoadFromFile decodes the TOML file at path over cfg. Values present in
// the file override whatever cfg already holds.
func LoadFromFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	if c.S3.Endpoint == "" {
		return fmt.Errorf("s3.endpoint is required")
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return fmt.Errorf("s3.access_key and s3.secret_key must be set together")
	}
	if c.Rotation.File == "" {
		return fmt.Errorf("rotation.file is required")
	}
	if c.Rotation.MinIndex < 1 {
		return fmt.Errorf("rotation.min_index must be at least 1, got %d", c.Rotation.MinIndex)
	}
	if c.Rotation.MaxIndex < c.Rotation.MinIndex {
		return fmt.Errorf("rotation.max_index (%d) must not be below rotation.min_index (%d)",
			c.Rotation.MaxIndex, c.Rotation.MinIndex)
	}
	if c.Uploader.QueueSize < 0 {
		return fmt.Errorf("uploader.queue_size must not be negative, got %d", c.Uploader.QueueSize)
	}
	if _, err := c.Rotation.GetMaxSize(); err != nil {
		return fmt.Errorf("invalid rotation.max_size: %w", err)
	}
	if _, err := c.Uploader.GetDrainTimeout(); err != nil {
		return fmt.Errorf("invalid uploader.drain_timeout: %w", err)
	}
	return nil
}

func (c *RotationConfig) GetMaxSize() (int64, error) {
	if c.MaxSize == "" {
		c.MaxSize = "10mb"
	}
	return helpers.ParseSize(c.MaxSize)
}

func (c *UploaderConfig) GetDrainTimeout() (time.Duration, error) {
	if c.DrainTimeout == "" {
		c.DrainTimeout = "10m"
	}
	return helpers.ParseDuration(c.DrainTimeout)
}
