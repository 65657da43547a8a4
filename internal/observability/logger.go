package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every log line and the /health body.
const ServiceName = "weather-dashboard"

// NewLogger builds the process logger. LOG_LEVEL picks the level, LOG_FORMAT=console
// switches to the human-readable encoder for local runs, and ENV_NAME is attached
// to every entry.
func NewLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = parseLogFormat(os.Getenv("LOG_FORMAT"))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = parseLogLevel(os.Getenv("LOG_LEVEL"))
	config.InitialFields = map[string]interface{}{
		"service": ServiceName,
		"env":     envName(),
	}

	return config.Build()
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func parseLogFormat(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "console") {
		return "console"
	}
	return "json"
}

func envName() string {
	if v := strings.TrimSpace(os.Getenv("ENV_NAME")); v != "" {
		return v
	}
	return "dev"
}
