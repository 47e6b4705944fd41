package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"`        // debug, info, warn, error
	Format      string `yaml:"format"`       // json, console
	ConsoleEcho bool   `yaml:"console_echo"` // coloured one-line echo of each audit entry
}
