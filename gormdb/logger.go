package gormdb

import (
	"context"
	"errors"
	"time"

	"github.com/golly-go/reqdb"
	"github.com/golly-go/reqdb/env"
	"github.com/golly-go/reqdb/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowThreshold is the duration above which a statement is logged as slow.
const SlowThreshold = time.Second

// Logger sends gorm's output to logrus.
type Logger struct {
	entry *logrus.Entry
	level logger.LogLevel
}

var _ logger.Interface = (*Logger)(nil)

// NewLogger returns a Logger tagged with driver. Statements are traced in
// development and test; elsewhere only warnings and errors are logged.
func NewLogger(entry *logrus.Entry, driver string) *Logger {
	if entry == nil {
		entry = reqdb.NewLogger()
	}

	level := logger.Warn
	if env.IsDevelopmentOrTest() {
		level = logger.Info
	}

	return &Logger{entry: entry.WithField("db.driver", driver), level: level}
}

func (l *Logger) withSource() *logrus.Entry {
	return l.entry.WithField("caller", utils.FileWithLineNum())
}

// LogMode returns a copy logging at level.
func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *Logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.withSource().Infof(msg, data...)
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.withSource().Warnf(msg, data...)
	}
}

func (l *Logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.withSource().Errorf(msg, data...)
	}
}

// Trace logs one statement.
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	duration := float64(elapsed.Nanoseconds()) / 1e6

	entry := l.entry.WithFields(logrus.Fields{
		"duration": duration,
		"caller":   utils.FileWithLineNum(),
	})

	sql, rows := fc()
	if rows != -1 {
		entry = entry.WithField("rows", rows)
	}

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		entry.WithError(err).Error(sql)
	case elapsed >= SlowThreshold && l.level >= logger.Warn:
		entry.Warnf("SLOW SQL >= %v (%s)", SlowThreshold, sql)
	case l.level >= logger.Info:
		entry.Debug(sql)
	}
}
