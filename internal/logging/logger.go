// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production. Any
// fields are attached to every entry the logger writes.
func New(development bool, fields ...zap.Field) (*zap.Logger, error) {
	var (
		cfg zap.Config
		err error
		lg  *zap.Logger
	)
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	lg, err = cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if len(fields) > 0 {
		lg = lg.With(fields...)
	}
	return lg, nil
}

// ServiceFields returns the identifying fields stamped on every log entry.
func ServiceFields(service, version string) []zap.Field {
	out := make([]zap.Field, 0, 2)
	if service != "" {
		out = append(out, zap.String("service", service))
	}
	if version != "" {
		out = append(out, zap.String("version", version))
	}
	return out
}
