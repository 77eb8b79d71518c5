// Package logging builds the process-wide zap logger.
package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chaz8081/govee-light/internal/config"
)

// InitLogger builds a zap logger from cfg. Output always goes to stderr;
// when cfg.File.Filename is set it is also written to a lumberjack rolling
// file.
func InitLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.AddSync(os.Stderr))
}

func newLogger(cfg config.LoggingConfig, console zapcore.WriteSyncer) (*zap.Logger, error) {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	ws := console
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		ws = zapcore.NewMultiWriteSyncer(console, zapcore.AddSync(lj))
	}

	core := zapcore.NewCore(encoder, ws, config.ParseLogLevel(cfg.Level))
	return zap.New(core, zap.AddCaller()), nil
}
