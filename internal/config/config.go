// File: internal/config/config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the application configuration: logging plus the codec
// defaults advertised in the egress SETTINGS.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Codec  CodecConfig  `mapstructure:"codec" yaml:"codec"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// CodecConfig holds the HTTP/3 settings this endpoint advertises.
type CodecConfig struct {
	MaxFieldSectionSize   uint64 `mapstructure:"max_field_section_size" yaml:"max_field_section_size"`
	QPACKMaxTableCapacity uint64 `mapstructure:"qpack_max_table_capacity" yaml:"qpack_max_table_capacity"`
	QPACKBlockedStreams   uint64 `mapstructure:"qpack_blocked_streams" yaml:"qpack_blocked_streams"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "hqmux")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Codec --
	v.SetDefault("codec.max_field_section_size", 64*1024)
	// The shipped QPACK engine is static-table only.
	v.SetDefault("codec.qpack_max_table_capacity", 0)
	v.SetDefault("codec.qpack_blocked_streams", 0)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from an optional file plus HQMUX_* environment
// variables, layered over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("HQMUX")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations this implementation cannot honor.
func (c *Config) Validate() error {
	if c.Codec.QPACKMaxTableCapacity != 0 {
		return fmt.Errorf("qpack_max_table_capacity %d unsupported: the QPACK engine is static-table only", c.Codec.QPACKMaxTableCapacity)
	}
	if c.Codec.QPACKBlockedStreams != 0 {
		return fmt.Errorf("qpack_blocked_streams %d unsupported without a dynamic table", c.Codec.QPACKBlockedStreams)
	}
	return nil
}
