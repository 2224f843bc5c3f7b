package config

const (
	defaultServiceName        = "filterms"
	defaultPollIntervalMillis = 100
	defaultDialTimeoutMillis  = 2000
	defaultMaxFramesPerCycle  = 64
	defaultOutputMode         = OutputAuto
	defaultPublisherBuffer    = 64
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Output modes for relayed signals written by the aggregate command.
const (
	OutputAuto   = "auto"
	OutputRaw    = "raw"
	OutputPretty = "pretty"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Service: Service{
			Name: defaultServiceName,
		},
		Aggregator: Aggregator{
			PollIntervalMillis: defaultPollIntervalMillis,
			DialTimeoutMillis:  defaultDialTimeoutMillis,
			MaxFramesPerCycle:  defaultMaxFramesPerCycle,
			Output:             defaultOutputMode,
		},
		Publisher: Publisher{
			Buffer: defaultPublisherBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
