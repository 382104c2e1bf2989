// Package logging holds the process-wide zap logger. The logger is a nop
// unless the root command enables verbose mode, so library code can log
// freely without polluting normal CLI output.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop().Sugar()

// Init configures the global logger. Called once from the root command
// before any subcommand runs.
func Init(verbose bool) {
	if !verbose {
		return
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	l, err := cfg.Build()
	if err != nil {
		return
	}
	logger = l.Sugar()
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	return logger
}
