// Package logging builds the process logger: structured console output, plus
// an optional date-stamped debug log file (one file per day, like the
// original pipeline's log directory).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger.
//
// Behavior:
//   - Console core at Info (Debug when verbose), human-readable encoding.
//   - When logDir is non-empty, a JSON core at Debug writes to
//     <logDir>/jaffle_YYYYMMDD.log (created if needed, appended across runs).
//
// The returned closer flushes buffered entries; call it on shutdown.
func New(verbose bool, logDir string) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}

	var file *os.File
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create %s: %w", logDir, err)
		}

		name := filepath.Join(logDir, fmt.Sprintf("jaffle_%s.log", time.Now().Format("20060102")))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", name, err)
		}
		file = f

		fileEncCfg := zap.NewProductionEncoderConfig()
		fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncCfg), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...)).Named("jaffle")

	closer := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closer, nil
}
