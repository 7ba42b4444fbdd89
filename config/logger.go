package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger = zap.NewNop()

// InitLogger builds the global zap logger from the configured log level.
// Development mode gets the human-readable console encoder.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	logger = l
	return l, nil
}

// Logger returns the global logger
func Logger() *zap.Logger {
	return logger
}

// SetLogger sets the global logger (primarily for testing)
func SetLogger(l *zap.Logger) {
	logger = l
}
