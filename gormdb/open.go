package gormdb

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Driver names accepted under <app>.db.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverInMemory = "in-memory"
)

// SetConfigDefaults registers the <app>.db defaults on v.
func SetConfigDefaults(appName string, v *viper.Viper) *viper.Viper {
	v.SetDefault(appName, map[string]interface{}{
		"db": map[string]interface{}{
			"host":              "127.0.0.1",
			"port":              "5432",
			"username":          "app",
			"password":          "password",
			"name":              appName,
			"driver":            DriverPostgres,
			"path":              appName + ".sqlite",
			"max_open_conns":    10,
			"max_idle_conns":    5,
			"conn_max_lifetime": "30m",
		},
	})
	return v
}

// Open connects using the <appName>.db section of v. DATABASE_URL, when set,
// takes precedence for postgres.
func Open(v *viper.Viper, appName string, entry *logrus.Entry) (*gorm.DB, error) {
	v = SetConfigDefaults(appName, v)
	key := func(k string) string { return appName + ".db." + k }

	driver := v.GetString(key("driver"))

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(postgresDSN(v, appName))
	case DriverSQLite:
		dialector = sqlite.Open(v.GetString(key("path")))
	case DriverInMemory:
		dialector = sqlite.Open(inMemoryDSN(appName))
	default:
		return nil, fmt.Errorf("gormdb: database driver %q not supported", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewLogger(entry, driver)})
	if err != nil {
		return nil, fmt.Errorf("gormdb: open %s: %w", driver, err)
	}

	if err := configurePool(db, v.GetInt(key("max_open_conns")), v.GetInt(key("max_idle_conns")), v.GetDuration(key("conn_max_lifetime"))); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenURL connects to url. postgres:// and postgresql:// URLs use the
// postgres driver; sqlite: and file: URLs and bare paths use sqlite.
func OpenURL(url string, entry *logrus.Entry) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		driver    string
	)

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		driver, dialector = DriverPostgres, postgres.Open(url)
	default:
		driver, dialector = DriverSQLite, sqlite.Open(strings.TrimPrefix(url, "sqlite:"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewLogger(entry, driver)})
	if err != nil {
		return nil, fmt.Errorf("gormdb: open %s: %w", driver, err)
	}
	return db, nil
}

// NewInMemoryConnection opens a shared-cache in-memory sqlite database named
// name and migrates models into it.
func NewInMemoryConnection(name string, models ...interface{}) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(inMemoryDSN(name)), &gorm.Config{Logger: NewLogger(nil, DriverInMemory)})
	if err != nil {
		return nil, err
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func inMemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

func postgresDSN(v *viper.Viper, appName string) string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	return fmt.Sprintf("dbname=%s host=%s port=%d user=%s password=%s sslmode=disable",
		v.GetString(appName+".db.name"),
		v.GetString(appName+".db.host"),
		v.GetInt(appName+".db.port"),
		v.GetString(appName+".db.username"),
		v.GetString(appName+".db.password"),
	)
}

func configurePool(db *gorm.DB, maxOpen, maxIdle int, lifetime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("gormdb: underlying pool: %w", err)
	}

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}
	return nil
}
