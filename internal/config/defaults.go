package config

const (
	defaultConfigPath            = "~/.config/docgate/config.toml"
	defaultServerInterface       = "127.0.0.1"
	defaultServerPort            = 2003
	defaultEngineAgent           = "docgate-uno-agent"
	defaultEngineExecutable      = "libreoffice"
	defaultEngineInterface       = "127.0.0.1"
	defaultEnginePort            = 2002
	defaultConnectTimeoutSeconds = 60
	defaultConnectIntervalMillis = 500
	defaultStopGraceSeconds      = 10
	defaultStateDir              = "~/.local/share/docgate"
	defaultLogDir                = "~/.local/share/docgate/logs"
	defaultJournalRetentionDays  = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Interface: defaultServerInterface,
			Port:      defaultServerPort,
		},
		Engine: Engine{
			AgentCommand:          defaultEngineAgent,
			Executable:            defaultEngineExecutable,
			Interface:             defaultEngineInterface,
			Port:                  defaultEnginePort,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			ConnectIntervalMillis: defaultConnectIntervalMillis,
			StopGraceSeconds:      defaultStopGraceSeconds,
		},
		Conversion: Conversion{
			UpdateIndexDefault: true,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
