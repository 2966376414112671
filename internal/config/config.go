package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ControlAddr     string        `mapstructure:"control_addr" yaml:"control_addr"`
	DatabasePath    string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile         string        `mapstructure:"log_file" yaml:"log_file"`
	AdminSecret     string        `mapstructure:"admin_secret" yaml:"admin_secret"`
	HistoryLimit    int           `mapstructure:"history_limit" yaml:"history_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:            ":12345",
		ControlAddr:     ":12346",
		DatabasePath:    "classcord.db",
		LogLevel:        "info",
		HistoryLimit:    50,
		ShutdownTimeout: 5 * time.Second,
	}
}
