// defaults.go: default configuration values applied before reading the
// config file.
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers all defaults with viper.
func setDefaultConfig() {
	// Main
	viper.SetDefault("main.name", "FieldSight")
	viper.SetDefault("main.timeas24h", true)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "fieldsight.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	// Telemetry
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	// Database
	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "fieldsight.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "fieldsight")
	viper.SetDefault("database.mysql.password", "secret")
	viper.SetDefault("database.mysql.database", "fieldsight")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	// Analyzer runtime
	viper.SetDefault("analyzer.debug", false)
	viper.SetDefault("analyzer.handlefixdelay", time.Minute)
	viper.SetDefault("analyzer.taskgracewindow", 3*time.Minute)
	viper.SetDefault("analyzer.workers", 4)
	viper.SetDefault("analyzer.autoresolveinterval", 5*time.Minute)
	viper.SetDefault("analyzer.evaluationinterval", time.Minute)

	// Environmental raster service
	viper.SetDefault("environmental.endpoint", "")
	viper.SetDefault("environmental.apikey", "")
	viper.SetDefault("environmental.timeout", 30*time.Second)

	// Alerting
	viper.SetDefault("alerting.debug", false)
	viper.SetDefault("alerting.sitename", "FieldSight")
	viper.SetDefault("alerting.siteurl", "http://localhost")
	viper.SetDefault("alerting.email.enabled", false)
	viper.SetDefault("alerting.email.url", "")
	viper.SetDefault("alerting.sms.enabled", false)
	viper.SetDefault("alerting.sms.url", "")
	viper.SetDefault("alerting.whatsapp.enabled", false)
	viper.SetDefault("alerting.whatsapp.url", "")
}
