package gormdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT 1", 1 }

	tests := []struct {
		name      string
		level     logger.LogLevel
		begin     time.Time
		err       error
		wantLevel logrus.Level
		wantNone  bool
	}{
		{name: "statement", level: logger.Info, begin: time.Now(), wantLevel: logrus.DebugLevel},
		{name: "error", level: logger.Warn, begin: time.Now(), err: errors.New("syntax error"), wantLevel: logrus.ErrorLevel},
		{name: "not found is not an error", level: logger.Warn, begin: time.Now(), err: gorm.ErrRecordNotFound, wantNone: true},
		{name: "slow", level: logger.Warn, begin: time.Now().Add(-2 * SlowThreshold), wantLevel: logrus.WarnLevel},
		{name: "silent", level: logger.Silent, begin: time.Now(), err: errors.New("x"), wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, hook := test.NewNullLogger()
			base.SetLevel(logrus.DebugLevel)

			l := NewLogger(logrus.NewEntry(base), DriverSQLite).LogMode(tt.level)
			l.Trace(context.Background(), tt.begin, sql, tt.err)

			if tt.wantNone {
				assert.Empty(t, hook.AllEntries())
				return
			}

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, DriverSQLite, entry.Data["db.driver"])
			assert.Equal(t, int64(1), entry.Data["rows"])
			assert.Contains(t, entry.Data, "caller")
		})
	}
}

func TestLogger_LogModeCopies(t *testing.T) {
	base, hook := test.NewNullLogger()

	l := NewLogger(logrus.NewEntry(base), DriverPostgres)
	silent := l.LogMode(logger.Silent)

	silent.Warn(context.Background(), "dropped")
	assert.Empty(t, hook.AllEntries())

	l.Warn(context.Background(), "kept %d", 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "kept 1", hook.LastEntry().Message)
}
