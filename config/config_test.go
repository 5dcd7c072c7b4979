package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
socket: /run/graph.sock
buffer_size: 1024
metrics: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("MEDIAGRAPH_BUFFER_SIZE", "256")
	t.Setenv("MEDIAGRAPH_DEBUG", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/graph.sock", cfg.Socket)
	// environment overrides file.
	assert.Equal(t, 256, cfg.BufferSize)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Metrics)
	assert.Equal(t, config.Defaults().MaxMessageSize, cfg.MaxMessageSize)
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		modify      func(*config.Config)
		expected    []error
	}{
		{
			description: "empty socket",
			modify:      func(c *config.Config) { c.Socket = "" },
			expected:    []error{config.ErrSocket},
		},
		{
			description: "zero buffer size",
			modify:      func(c *config.Config) { c.BufferSize = 0 },
			expected:    []error{config.ErrBufferSize},
		},
		{
			description: "all invalid",
			modify: func(c *config.Config) {
				c.Socket = ""
				c.BufferSize = -1
				c.MaxMessageSize = 8
			},
			expected: []error{config.ErrSocket, config.ErrBufferSize, config.ErrMessageSize},
		},
	}
	for _, test := range tests {
		cfg := config.Defaults()
		test.modify(&cfg)
		err := cfg.Validate()
		for _, expected := range test.expected {
			assert.True(t, errors.Is(err, expected), test.description)
		}
	}
}
