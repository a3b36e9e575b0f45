package config

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Development mode switches to the
// console encoder and enables stack traces on warnings.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}
