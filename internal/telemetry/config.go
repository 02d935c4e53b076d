package telemetry

// Config selects the OTLP collector. An empty endpoint disables export.
type Config struct {
	Endpoint string
	Insecure bool
}

func (c Config) Enabled() bool { return c.Endpoint != "" }
