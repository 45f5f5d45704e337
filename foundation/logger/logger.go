// Package logger provides a convience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File describes a rotating log file the logger writes to as well.
type File struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New constructs a Sugared Logger that writes to stdout and
// provides human readable timestamps.
func New(service string, outputPaths ...string) (*zap.SugaredLogger, error) {
	return build(service, nil, outputPaths...)
}

// NewWithFile is like New but also writes every entry to a rotating file.
func NewWithFile(service string, file File, outputPaths ...string) (*zap.SugaredLogger, error) {
	return build(service, &file, outputPaths...)
}

func build(service string, file *File, outputPaths ...string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()

	config.OutputPaths = []string{"stdout"}
	if outputPaths != nil {
		config.OutputPaths = outputPaths
	}

	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	var opts []zap.Option
	if file != nil && file.Path != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
		})

		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(config.EncoderConfig), sink, config.Level).
			With([]zapcore.Field{zap.String("service", service)})

		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	log, err := config.Build(opts...)
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}
