package gorm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// LogrusLogger routes gorm output through the standard logrus logger.
var LogrusLogger logger.Interface = &logrusLogger{
	logger: logrus.StandardLogger(),
	level:  logger.Warn,
}

type logrusLogger struct {
	logger *logrus.Logger
	level  logger.LogLevel
}

func (l *logrusLogger) LogMode(level logger.LogLevel) logger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *logrusLogger) Info(ctx context.Context, s string, i ...interface{}) {
	if l.level >= logger.Info {
		l.entry(ctx).Infof(s, i...)
	}
}

func (l *logrusLogger) Warn(ctx context.Context, s string, i ...interface{}) {
	if l.level >= logger.Warn {
		l.entry(ctx).Warnf(s, i...)
	}
}

func (l *logrusLogger) Error(ctx context.Context, s string, i ...interface{}) {
	if l.level >= logger.Error {
		l.entry(ctx).Errorf(s, i...)
	}
}

func (l *logrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level == logger.Silent || !l.logger.IsLevelEnabled(logrus.TraceLevel) && err == nil {
		return
	}

	sql, rowsAffected := fc()
	entry := l.entry(ctx).WithFields(logrus.Fields{
		"elapsed": time.Since(begin),
		"rows":    rowsAffected,
	})

	if err != nil && !isRecordNotFound(err) {
		entry.Debugf("%s: %v", sql, err)
		return
	}

	entry.Tracef("%s", sql)
}

func (l *logrusLogger) entry(ctx context.Context) *logrus.Entry {
	return l.logger.WithContext(ctx).WithField("logger", "gorm")
}
