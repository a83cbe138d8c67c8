package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const appName = "reqdb"

// initConfig looks for reqdb.json in $HOME/reqdb and the working directory.
// Environment variables override keys with dots replaced by underscores.
func initConfig() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(appName)
	v.SetConfigType("json")
	v.AddConfigPath(fmt.Sprintf("$HOME/%s", appName))
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, err
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind", ":9999")
	v.SetDefault("driver", driverGormSQLite)
	v.SetDefault("dsn", appName+".sqlite")
	v.SetDefault(appName+".db.direct_methods", []string{"GET", "HEAD"})
	v.SetDefault(appName+".db.rollback_on_client_error", false)
	v.SetDefault(appName+".db.finalize_timeout", "30s")
}

// dsn prefers DATABASE_URL over the configured dsn.
func dsn(v *viper.Viper) string {
	if url := v.GetString("DATABASE_URL"); url != "" {
		return url
	}
	return v.GetString("dsn")
}
