// Package logging builds the zap logger used by the command line tool.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFile is used when -l is given without a file name
const DefaultFile = "latexdiffcite.log"

// Options selects the console level and the optional log file
type Options struct {
	Verbose bool
	Silent  bool
	File    string

	// Console defaults to stderr
	Console io.Writer
}

// ConsoleLevel returns the level shown on the console. Verbose wins over Silent.
func (o Options) ConsoleLevel() zapcore.Level {
	switch {
	case o.Verbose:
		return zapcore.DebugLevel
	case o.Silent:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates the logger. The returned close function syncs the logger and
// closes the log file.
func New(opts Options) (*zap.Logger, func(), error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleEnc zapcore.Encoder
	if opts.Verbose {
		consoleEnc = zapcore.NewConsoleEncoder(detailedEncoderConfig())
	} else {
		consoleEnc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeDuration: zapcore.StringDurationEncoder,
		})
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(zapcore.AddSync(console)), opts.ConsoleLevel()),
	}

	var file *os.File
	if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(detailedEncoderConfig()),
			zapcore.Lock(f),
			zapcore.DebugLevel,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closeFn, nil
}

func detailedEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
