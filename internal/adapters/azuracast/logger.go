package azuracast

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledLogger routes retryablehttp diagnostics into zap. Request chatter is
// demoted to debug; retries stay visible at warn.
type leveledLogger struct {
	log *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
