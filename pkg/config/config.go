// Package config loads and validates the server configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (RANGECLOUD_*)
//  2. Configuration file (JSON, conventionally <cloud-dir>/etc/configuration.json)
//  3. Default values
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/rangelabs/rangecloud/internal/bytesize"
)

// Config is the server configuration. The top-level keys match the
// on-disk configuration.json document.
type Config struct {
	// CloudDirectory is the root of the server's on-disk layout; etc,
	// cert, store, log, var, processes and reports all live under it.
	CloudDirectory string `mapstructure:"cloudDirectory" json:"cloudDirectory" validate:"required"`

	// RangeCADirectory is handed to spawned processes that interact
	// with the certificate authority tooling.
	RangeCADirectory string `mapstructure:"rangeCaDirectory" json:"rangeCaDirectory"`

	// PublicHTTPPort is the TLS listener that accepts anonymous and
	// token-authenticated clients.
	PublicHTTPPort int `mapstructure:"publicHttpPort" json:"publicHttpPort" validate:"min=1,max=65535"`

	// PrivateHTTPPort is the mutual-TLS listener.
	PrivateHTTPPort int `mapstructure:"privateHttpPort" json:"privateHttpPort" validate:"min=1,max=65535"`

	// RateLimitPerSecond caps per-peer request rates on both listeners.
	RateLimitPerSecond float64 `mapstructure:"rateLimitPerSecond" json:"rateLimitPerSecond" validate:"gt=0"`

	// PublicKey and PrivateKey are the server certificate and key in
	// PEM form. Relative paths resolve under cert/server.
	PublicKey          string `mapstructure:"publicKey" json:"publicKey"`
	PrivateKey         string `mapstructure:"privateKey" json:"privateKey"`
	PrivateKeyPassword string `mapstructure:"privateKeyPassword" json:"privateKeyPassword,omitempty"`

	// CAPublicKey is the CA chain clients of the private listener must
	// present. Relative paths resolve under cert/ca.
	CAPublicKey string `mapstructure:"caPublicKey" json:"caPublicKey"`

	// FileStore overrides the blob directory; empty means
	// <cloud-dir>/store.
	FileStore string `mapstructure:"fileStore" json:"fileStore,omitempty"`

	// FileStoreMaxSize and FileStoreMaxFileSize bound the store; a
	// negative value disables the bound. Values may carry a unit
	// suffix, e.g. "500Mi" or "2GB".
	FileStoreMaxSize     int64 `mapstructure:"fileStoreMaxSize" json:"fileStoreMaxSize"`
	FileStoreMaxFileSize int64 `mapstructure:"fileStoreMaxFileSize" json:"fileStoreMaxFileSize"`

	// MaxReportLength and MaxCommentLength bound report submissions; a
	// negative value disables the bound.
	MaxReportLength  int64 `mapstructure:"maxReportLength" json:"maxReportLength"`
	MaxCommentLength int64 `mapstructure:"maxCommentLength" json:"maxCommentLength"`

	// SenderEmailAddress is the From address on outbound mail.
	SenderEmailAddress string `mapstructure:"senderEmailAddress" json:"senderEmailAddress,omitempty"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`

	// Metrics configures the Prometheus metrics listener.
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" json:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" json:"output" validate:"required"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" json:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" json:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" json:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" json:"sample_rate" validate:"omitempty,gte=0,lte=1"`
	Profiling  ProfilingConfig `mapstructure:"profiling" json:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" json:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" json:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" json:"profile_types,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// Directory layout helpers. Everything hangs off CloudDirectory.

func (c *Config) EtcDir() string        { return filepath.Join(c.CloudDirectory, "etc") }
func (c *Config) CertServerDir() string { return filepath.Join(c.CloudDirectory, "cert", "server") }
func (c *Config) CertCADir() string     { return filepath.Join(c.CloudDirectory, "cert", "ca") }
func (c *Config) LogDir() string        { return filepath.Join(c.CloudDirectory, "log") }
func (c *Config) VarDir() string        { return filepath.Join(c.CloudDirectory, "var") }
func (c *Config) ProcessesDir() string  { return filepath.Join(c.CloudDirectory, "processes") }
func (c *Config) ReportsDir() string    { return filepath.Join(c.CloudDirectory, "reports") }

// StoreDir resolves the blob directory, honoring the FileStore override.
func (c *Config) StoreDir() string {
	if c.FileStore != "" {
		return c.FileStore
	}
	return filepath.Join(c.CloudDirectory, "store")
}

func (c *Config) ConfigFile() string    { return filepath.Join(c.EtcDir(), "configuration.json") }
func (c *Config) UsersFile() string     { return filepath.Join(c.EtcDir(), "users.json") }
func (c *Config) ActionsFile() string   { return filepath.Join(c.EtcDir(), "actions.json") }
func (c *Config) ProcessesFile() string { return filepath.Join(c.EtcDir(), "processes.json") }

// ServerCertFile resolves PublicKey, treating relative paths as names
// under cert/server.
func (c *Config) ServerCertFile() string { return c.resolveCert(c.PublicKey, c.CertServerDir()) }

// ServerKeyFile resolves PrivateKey the same way.
func (c *Config) ServerKeyFile() string { return c.resolveCert(c.PrivateKey, c.CertServerDir()) }

// CACertFile resolves CAPublicKey under cert/ca.
func (c *Config) CACertFile() string { return c.resolveCert(c.CAPublicKey, c.CertCADir()) }

func (c *Config) resolveCert(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Load reads the configuration from path, merges RANGECLOUD_*
// environment variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("RANGECLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering every key gives AutomaticEnv something to bind to
	// even when the config file omits the key entirely.
	for key, value := range map[string]any{
		"cloudDirectory":       "",
		"rangeCaDirectory":     "",
		"publicHttpPort":       DefaultPublicHTTPPort,
		"privateHttpPort":      DefaultPrivateHTTPPort,
		"rateLimitPerSecond":   DefaultRateLimit,
		"publicKey":            "server.cert.pem",
		"privateKey":           "server.key.pem",
		"privateKeyPassword":   "",
		"caPublicKey":          "ca-chain.cert.pem",
		"fileStore":            "",
		"fileStoreMaxSize":     -1,
		"fileStoreMaxFileSize": -1,
		"maxReportLength":      -1,
		"maxCommentLength":     -1,
		"senderEmailAddress":   "",
		"logging.level":        "INFO",
		"logging.format":       "text",
		"logging.output":       "stdout",
		"metrics.enabled":      false,
		"metrics.port":         0,
	} {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		// Missing file: environment plus defaults.
	}

	var cfg Config
	// Numeric settings are accepted as strings: hand-edited
	// configuration files frequently quote them.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       byteSizeHook(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// byteSizeHook lets the int64 size limits be written with a unit
// suffix. Plain numbers, including the -1 sentinel, pass through.
func byteSizeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Int64 {
			return data, nil
		}
		s := data.(string)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return data, nil
		}
		size, err := bytesize.ParseByteSize(s)
		if err != nil {
			return nil, err
		}
		return size.Int64(), nil
	}
}

// Validate checks the configuration against the struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Save writes the configuration as indented JSON, creating the parent
// directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// 0600: the file may carry a private key password.
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
