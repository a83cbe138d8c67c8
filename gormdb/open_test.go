package gormdb

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullEntry() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestSetConfigDefaults(t *testing.T) {
	v := SetConfigDefaults("notes", viper.New())

	assert.Equal(t, DriverPostgres, v.GetString("notes.db.driver"))
	assert.Equal(t, "notes", v.GetString("notes.db.name"))
	assert.Equal(t, 5432, v.GetInt("notes.db.port"))
	assert.Equal(t, 10, v.GetInt("notes.db.max_open_conns"))
}

func TestPostgresDSN(t *testing.T) {
	v := SetConfigDefaults("notes", viper.New())

	t.Setenv("DATABASE_URL", "")
	assert.Equal(t,
		"dbname=notes host=127.0.0.1 port=5432 user=app password=password sslmode=disable",
		postgresDSN(v, "notes"))

	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/notes")
	assert.Equal(t, "postgres://u:p@db:5432/notes", postgresDSN(v, "notes"))
}

func TestOpen(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		v := viper.New()
		v.Set("notes.db.driver", DriverSQLite)
		v.Set("notes.db.path", filepath.Join(t.TempDir(), "notes.sqlite"))
		v.Set("notes.db.max_open_conns", 3)

		db, err := Open(v, "notes", nullEntry())
		require.NoError(t, err)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()

		assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
	})

	t.Run("in-memory", func(t *testing.T) {
		v := viper.New()
		v.Set("memtest.db.driver", DriverInMemory)

		db, err := Open(v, "memtest", nullEntry())
		require.NoError(t, err)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()

		assert.NoError(t, sqlDB.Ping())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		v := viper.New()
		v.Set("notes.db.driver", "oracle")

		_, err := Open(v, "notes", nullEntry())
		assert.ErrorContains(t, err, `"oracle" not supported`)
	})
}

func TestOpenURL_SQLite(t *testing.T) {
	db, err := OpenURL("sqlite:"+filepath.Join(t.TempDir(), "url.sqlite"), nullEntry())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, "sqlite", db.Dialector.Name())
}

func TestNewInMemoryConnection(t *testing.T) {
	db, err := NewInMemoryConnection("inmem_models", &note{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.True(t, db.Migrator().HasTable(&note{}))
}
