// Package config provides configuration of mediagraph tools.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"pipelined.dev/graph/buffer"
	"pipelined.dev/graph/transport"
)

// EnvPrefix is the prefix of environment variables that override file
// values, e.g. MEDIAGRAPH_BUFFER_SIZE.
const EnvPrefix = "MEDIAGRAPH"

var (
	// ErrSocket is returned when socket path is empty.
	ErrSocket = errors.New("empty socket path")
	// ErrBufferSize is returned when block size is not positive.
	ErrBufferSize = errors.New("buffer size must be positive")
	// ErrMessageSize is returned when message can't hold buffer header.
	ErrMessageSize = errors.New("max message size is too small")
)

// Config holds all configuration options.
type Config struct {
	Socket         string `mapstructure:"socket"`           // unix socket path of send and receive
	BufferSize     int    `mapstructure:"buffer_size"`      // frames per block
	MaxMessageSize int    `mapstructure:"max_message_size"` // bytes per transported buffer
	Debug          bool   `mapstructure:"debug"`
	Metrics        bool   `mapstructure:"metrics"` // enable graph metrics
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Socket:         "/tmp/mediagraph.sock",
		BufferSize:     512,
		MaxMessageSize: transport.DefaultMaxMessageSize,
	}
}

// Load reads configuration from yaml file at path and environment. If
// path is empty, only defaults and environment are used.
func Load(path string) (Config, error) {
	defaults := Defaults()
	v := viper.New()
	v.SetDefault("socket", defaults.Socket)
	v.SetDefault("buffer_size", defaults.BufferSize)
	v.SetDefault("max_message_size", defaults.MaxMessageSize)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("metrics", defaults.Metrics)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration values.
func (c Config) Validate() error {
	var errs []error
	if c.Socket == "" {
		errs = append(errs, ErrSocket)
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrBufferSize, c.BufferSize))
	}
	if c.MaxMessageSize <= buffer.HeaderSize {
		errs = append(errs, fmt.Errorf("%w: %d", ErrMessageSize, c.MaxMessageSize))
	}
	return errors.Join(errs...)
}
