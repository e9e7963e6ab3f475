package config

const (
	defaultConfigPath          = "~/.config/synthbridge/config.toml"
	projectConfigName          = "synthbridge.toml"
	defaultStateDir            = "~/.local/share/synthbridge"
	defaultLogDir              = "~/.local/share/synthbridge/logs"
	defaultHomeEnv             = "FREESURFER_HOME"
	defaultFlagStyle           = "auto"
	defaultStaleWorkspaceHours = 24
	defaultThreads             = 1
	defaultBorder              = 1.0
	defaultNotifyTimeout       = 10
	defaultNotifyMinRunSeconds = 60
	defaultLogFormat           = "auto"
	defaultLogLevel            = "info"
	defaultFileLogLevel        = "debug"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		FreeSurfer: FreeSurfer{
			HomeEnv:             defaultHomeEnv,
			SynthStripFlagStyle: defaultFlagStyle,
			BlankEnv:            []string{"PYTHONHOME"},
			UnsetEnv:            []string{"PYTHONPATH"},
			StaleWorkspaceHours: defaultStaleWorkspaceHours,
		},
		SynthSeg: SynthSeg{
			Threads: defaultThreads,
		},
		SynthStrip: SynthStrip{
			Border: defaultBorder,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Runs:           true,
			Batches:        true,
			Errors:         true,
			MinRunSeconds:  defaultNotifyMinRunSeconds,
		},
		Logging: Logging{
			Format:    defaultLogFormat,
			Level:     defaultLogLevel,
			FileLevel: defaultFileLogLevel,
		},
	}
}
