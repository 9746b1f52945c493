package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	Sugar *zap.SugaredLogger
)

// LogFile is the name of the log file created by Setup inside its directory.
const LogFile = "nebula.log"

func init() {
	// Until Setup is called only warnings and errors reach stderr, which keeps
	// library users and tests quiet.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.WarnLevel,
	)
	replace(zap.New(core, zap.AddCaller()))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

// ParseLevel resolves a level name. An empty name falls back to
// NEBULA_LOG_LEVEL, then LOG_LEVEL, then info. Unknown names are an error.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(os.Getenv("NEBULA_LOG_LEVEL"))
	}
	if name == "" {
		name = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if name == "" {
		return zapcore.InfoLevel, nil
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Setup redirects the global loggers to <dir>/nebula.log.
func Setup(dir string, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(file),
		lvl,
	)

	// AddCaller ensures the log includes filename and line number
	replace(zap.New(core, zap.AddCaller()))
	return nil
}

// Use installs an arbitrary logger, e.g. zaptest or zap.NewNop in tests.
func Use(l *zap.Logger) {
	replace(l)
}

func replace(l *zap.Logger) {
	if Log != nil {
		_ = Log.Sync()
	}
	Log = l
	Sugar = l.Sugar()
}
