package tracer

// Config configures the tracer provider.
type Config struct {
	ServiceName string `yaml:"service_name" envconfig:"TRACER_SERVICE_NAME"`
	AppEnv      string `yaml:"app_env" envconfig:"APP_ENV"`

	// EnableExport turns on the OTLP HTTP exporter. Without it spans are
	// created but never leave the process.
	EnableExport bool `yaml:"enable_export" envconfig:"TRACER_ENABLE_EXPORT"`

	// Endpoint is host:port of the OTLP collector.
	Endpoint string `yaml:"endpoint" envconfig:"TRACER_ENDPOINT"`

	Insecure bool `yaml:"insecure" envconfig:"TRACER_INSECURE"`

	// SampleRatio in [0,1]; zero means sample everything.
	SampleRatio float64 `yaml:"sample_ratio" envconfig:"TRACER_SAMPLE_RATIO"`
}
