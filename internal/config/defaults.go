package config

const (
	defaultModelsDir = "~/.local/share/tonearm/models"
	defaultDataDir   = "~/.local/share/tonearm"
	defaultLogDir    = "~/.local/share/tonearm/logs"
	defaultOutputDir = "~/.local/share/tonearm/analysis"

	defaultBind                 = "127.0.0.1:9100"
	defaultShutdownDelayMS      = 500
	defaultShutdownGraceSeconds = 5

	defaultDemucsBinary   = "demucs"
	defaultDemucsModel    = "htdemucs"
	defaultAnalyzerBinary = "tonearm-analyzer"

	defaultSeparationTimeout = 3600
	defaultEventBuffer       = 16
	defaultHistoryLimit      = 20

	defaultNotifyRequestTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			ModelsDir: defaultModelsDir,
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Server: Server{
			Bind:                 defaultBind,
			ShutdownDelayMS:      defaultShutdownDelayMS,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
		},
		Tools: Tools{
			DemucsBinary:   defaultDemucsBinary,
			DemucsModel:    defaultDemucsModel,
			AnalyzerBinary: defaultAnalyzerBinary,
		},
		Pipeline: Pipeline{
			SeparationTimeout: defaultSeparationTimeout,
			EventBuffer:       defaultEventBuffer,
			HistoryLimit:      defaultHistoryLimit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
