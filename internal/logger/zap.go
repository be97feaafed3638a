package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds the diagnostics logger. Console output goes to stderr at
// level; when debugFile is set every entry down to debug is also written
// there as one JSON object per line. The returned func flushes and closes
// the file.
func NewZap(level, debugFile string) (*zap.Logger, func(), error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	consoleCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		MessageKey:    "msg",
		NameKey:       "logger",
		StacktraceKey: "",
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeTime:    zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeName:    zapcore.FullNameEncoder,
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl),
	}

	var f *os.File
	if debugFile != "" {
		if err := os.MkdirAll(filepath.Dir(debugFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create debug log dir: %w", err)
		}
		var err error
		f, err = os.OpenFile(debugFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open debug log: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "ts"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	zl := zap.New(zapcore.NewTee(cores...)).Named("lmagent")
	closeFn := func() {
		_ = zl.Sync()
		if f != nil {
			_ = f.Close()
		}
	}
	return zl, closeFn, nil
}
