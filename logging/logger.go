package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"hotspot/api/config"
)

// Init builds a logger that writes JSON to a rotating file per level and a
// readable stream to the console. The returned level gates every core and can
// be changed at runtime.
func Init(conf config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		return nil, level, fmt.Errorf("invalid log level %q: %w", conf.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	if err := os.MkdirAll(conf.Directory, 0755); err != nil {
		return nil, level, fmt.Errorf("could not create log directory: %w", err)
	}

	cores := []zapcore.Core{newConsoleCore(level)}
	for _, l := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
		cores = append(cores, newFileCore(conf, l, level, encoderConfig))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), level, nil
}

// newFileCore writes exactly one level to its own rotating file, e.g. logs/warn.log.
func newFileCore(conf config.LoggingConfig, only zapcore.Level, min zap.AtomicLevel, encoderConfig zapcore.EncoderConfig) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(conf.Directory, only.String()+".log"),
		MaxSize:    conf.MaxSize, // megabytes
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAge, // days
		Compress:   conf.Compress,
	})

	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l == only && min.Enabled(l)
	})

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, enabler)
}

func newConsoleCore(min zap.AtomicLevel) zapcore.Core {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stdout),
		min,
	)
}
