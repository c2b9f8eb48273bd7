// Package config loads the OSD client's static configuration from a YAML
// file, environment variables and defaults. An environment variable
// overrides a key the file sets; defaults fill whatever is left.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/osdc/internal/bytesize"
	"github.com/marmos91/osdc/pkg/clustermap"
)

// Config is the OSD client's static configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (OSDC_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// ClusterName identifies which cluster this client mounts.
	ClusterName string `mapstructure:"cluster_name" yaml:"cluster_name" validate:"required"`

	// Fsid is the cluster's 128-bit filesystem identifier, hex-encoded
	// (32 hex characters, no dashes). `osdc start` hands it to the
	// in-process monitor fake as the fsid that fake reports. osdc.Mount
	// takes the mount's fsid from the monitor client and does not compare
	// it with this value; maps whose fsid differs from the mount's are
	// refused (clustermap.ErrFsidMismatch). Empty decodes to the zero fsid
	// (see ParseFsid).
	Fsid string `mapstructure:"fsid" yaml:"fsid,omitempty" validate:"omitempty,len=32,hexadecimal"`

	// Monitors is the seed list of monitor addresses used to learn the
	// fsid and bootstrap the first cluster map.
	Monitors []string `mapstructure:"monitors" yaml:"monitors" validate:"required,min=1,dive,hostname_port"`

	// OsdTimeout is how long the oldest outstanding request may go
	// un-acknowledged before the registry pings its target and asks the
	// monitor for a newer map.
	OsdTimeout time.Duration `mapstructure:"osd_timeout" yaml:"osd_timeout" validate:"required,gt=0"`

	// UnsafeWriteback allows sync_write to complete on ack rather than
	// waiting for on-disk commit. Off by default; turning it on trades
	// durability for latency.
	UnsafeWriteback bool `mapstructure:"unsafe_writeback" yaml:"unsafe_writeback"`

	// Wsize and Rsize are the configured write and read sizes. They are
	// loaded, defaulted and printed by `osdc status`; pkg/osdc does not read
	// them, so sync_read and sync_write split a range only at layout
	// boundaries, not at these sizes.
	Wsize bytesize.ByteSize `mapstructure:"wsize" yaml:"wsize"`
	Rsize bytesize.ByteSize `mapstructure:"rsize" yaml:"rsize"`

	// EpochStoreDir, if non-empty, persists the last-known cluster map
	// epoch to this directory so a restart can resume from it instead of
	// epoch zero.
	EpochStoreDir string `mapstructure:"epoch_store_dir" yaml:"epoch_store_dir,omitempty"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"omitempty,gte=0,lte=1"`
}

// Default returns a Config populated with sane defaults and no monitors —
// callers must still supply ClusterName and Monitors before Validate
// passes.
func Default() *Config {
	return &Config{
		OsdTimeout: 30 * time.Second,
		Wsize:      4 << 20, // 4MiB
		Rsize:      4 << 20,
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9100,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// ApplyDefaults fills any zero-valued fields in cfg from Default().
func ApplyDefaults(cfg *Config) {
	d := Default()
	if cfg.OsdTimeout == 0 {
		cfg.OsdTimeout = d.OsdTimeout
	}
	if cfg.Wsize == 0 {
		cfg.Wsize = d.Wsize
	}
	if cfg.Rsize == 0 {
		cfg.Rsize = d.Rsize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = d.Metrics.Port
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = d.Telemetry.Endpoint
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = d.Telemetry.SampleRate
	}
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Load reads configuration from configPath (or the default search path if
// empty), with environment variables prefixed OSDC_ overriding the keys the
// file sets and defaults filling the rest, then validates the result. If no
// config file is found, Load returns Default() as is: environment variables
// are not read and no validation runs.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path in YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("OSDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "osdc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "osdc")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// ParseFsid decodes cfg.Fsid into a clustermap.Fsid. An empty Fsid decodes to
// the zero value with ok=false, meaning the caller should accept whatever
// fsid the monitor first reports rather than enforce one.
func ParseFsid(cfg *Config) (fsid clustermap.Fsid, ok bool, err error) {
	if cfg.Fsid == "" {
		return clustermap.Fsid{}, false, nil
	}
	b, err := hex.DecodeString(cfg.Fsid)
	if err != nil {
		return clustermap.Fsid{}, false, fmt.Errorf("invalid fsid: %w", err)
	}
	if len(b) != len(fsid) {
		return clustermap.Fsid{}, false, fmt.Errorf("invalid fsid: expected %d bytes, got %d", len(fsid), len(b))
	}
	copy(fsid[:], b)
	return fsid, true, nil
}
