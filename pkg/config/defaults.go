package config

import "strings"

// Default ports and limits. Negative limits mean unbounded.
const (
	DefaultPublicHTTPPort  = 8080
	DefaultPrivateHTTPPort = 8443
	DefaultRateLimit       = 10.0
)

// ApplyDefaults fills unset fields with their defaults. Zero values are
// replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.PublicHTTPPort == 0 {
		cfg.PublicHTTPPort = DefaultPublicHTTPPort
	}
	if cfg.PrivateHTTPPort == 0 {
		cfg.PrivateHTTPPort = DefaultPrivateHTTPPort
	}
	if cfg.RateLimitPerSecond == 0 {
		cfg.RateLimitPerSecond = DefaultRateLimit
	}
	if cfg.PublicKey == "" {
		cfg.PublicKey = "server.cert.pem"
	}
	if cfg.PrivateKey == "" {
		cfg.PrivateKey = "server.key.pem"
	}
	if cfg.CAPublicKey == "" {
		cfg.CAPublicKey = "ca-chain.cert.pem"
	}
	if cfg.FileStoreMaxSize == 0 {
		cfg.FileStoreMaxSize = -1
	}
	if cfg.FileStoreMaxFileSize == 0 {
		cfg.FileStoreMaxFileSize = -1
	}
	if cfg.MaxReportLength == 0 {
		cfg.MaxReportLength = -1
	}
	if cfg.MaxCommentLength == 0 {
		cfg.MaxCommentLength = -1
	}

	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a fully defaulted configuration rooted at
// cloudDir. Used by the init command to scaffold configuration.json.
func GetDefaultConfig(cloudDir string) *Config {
	cfg := &Config{CloudDirectory: cloudDir}
	ApplyDefaults(cfg)
	return cfg
}
