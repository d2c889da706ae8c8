package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "s3.amazonaws.com", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UseTLS)
	assert.Equal(t, "rollarc.log", cfg.Rotation.File)
	assert.Equal(t, 1, cfg.Rotation.MinIndex)
	assert.Equal(t, 7, cfg.Rotation.MaxIndex)
	assert.Equal(t, 0, cfg.Uploader.QueueSize)
	assert.True(t, cfg.Policy.RollingOnExit)

	maxSize, err := cfg.Rotation.GetMaxSize()
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), maxSize)

	drain, err := cfg.Uploader.GetDrainTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, drain)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollarc.toml")
	data := `
[s3]
endpoint = "minio.local:9000"
access_key = "ak"
secret_key = "sk"
bucket = "logs"
folder = "app1"
use_tls = false

[rotation]
file = "/var/log/app1/a.log"
max_size = "512kb"
max_index = 3

[uploader]
queue_size = 64
drain_timeout = "2m"

[policy]
rolling_on_exit = false

[metrics]
addr = "localhost:9090"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg := NewDefaultConfig()
	require.NoError(t, LoadFromFile(path, &cfg))

	assert.Equal(t, "minio.local:9000", cfg.S3.Endpoint)
	assert.Equal(t, "app1", cfg.S3.Folder)
	assert.False(t, cfg.S3.UseTLS)
	assert.Equal(t, "/var/log/app1/a.log", cfg.Rotation.File)
	assert.Equal(t, 1, cfg.Rotation.MinIndex, "defaults survive for keys the file omits")
	assert.Equal(t, 3, cfg.Rotation.MaxIndex)
	assert.Equal(t, 64, cfg.Uploader.QueueSize)
	assert.False(t, cfg.Policy.RollingOnExit)
	assert.Equal(t, "localhost:9090", cfg.Metrics.Addr)

	maxSize, err := cfg.Rotation.GetMaxSize()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024), maxSize)

	drain, err := cfg.Uploader.GetDrainTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, drain)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefaultConfig()
	err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"), &cfg)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollarc.toml")
	require.NoError(t, os.WriteFile(path, []byte("[s3\nbucket ="), 0o644))

	cfg := NewDefaultConfig()
	err := LoadFromFile(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse configuration file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := NewDefaultConfig()
		cfg.S3.Bucket = "logs"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing bucket", func(c *Config) { c.S3.Bucket = "" }, "s3.bucket"},
		{"missing endpoint", func(c *Config) { c.S3.Endpoint = "" }, "s3.endpoint"},
		{"access key alone", func(c *Config) { c.S3.AccessKey = "ak" }, "set together"},
		{"missing file", func(c *Config) { c.Rotation.File = "" }, "rotation.file"},
		{"min index zero", func(c *Config) { c.Rotation.MinIndex = 0 }, "min_index"},
		{"max below min", func(c *Config) { c.Rotation.MaxIndex = 0 }, "max_index"},
		{"negative queue size", func(c *Config) { c.Uploader.QueueSize = -1 }, "queue_size"},
		{"bad max size", func(c *Config) { c.Rotation.MaxSize = "ten megs" }, "max_size"},
		{"bad drain timeout", func(c *Config) { c.Uploader.DrainTimeout = "soonish" }, "drain_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}
