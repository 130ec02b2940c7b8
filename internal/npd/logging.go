package npd

import (
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig describes npd logging options.
type LogConfig struct {
	Level       string
	Format      string
	Output      string
	Environment string
	// File, when set, receives a copy of every record.
	File string
}

// NewLogger creates the process logger. Without an explicit level,
// production logs at info and everything else at debug.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	production := strings.EqualFold(cfg.Environment, "production")

	zcfg := zap.NewDevelopmentConfig()
	if production {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	} else if production {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		zcfg.Encoding = "json"
	case "console", "text":
		zcfg.Encoding = "console"
	}

	output := "stderr"
	if strings.EqualFold(cfg.Output, "stdout") {
		output = "stdout"
	}
	zcfg.OutputPaths = []string{output}
	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	version, commit := buildVersion()
	return logger.With(
		zap.String("app", "npd"),
		zap.Int("pid", os.Getpid()),
		zap.String("version", version),
		zap.String("commit", commit),
	), nil
}

func buildVersion() (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev", "unknown"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	commit := "unknown"
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			commit = setting.Value
			break
		}
	}
	return version, commit
}
