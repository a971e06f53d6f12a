package telemetry

// Config holds the OpenTelemetry tracing settings.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion identify this process to the trace
	// backend.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the head sampling ratio in [0.0, 1.0].
	SampleRate float64
}

// DefaultConfig returns the tracing defaults: disabled, sampling
// everything when turned on.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "rangecloud",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
