package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fieldsight/fieldsight-go/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow and logged at warn level.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn)
}

// performAutoMigration runs GORM auto-migration over the full data model.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	err := db.AutoMigrate(
		&Subject{},
		&SubjectGroup{},
		&Fix{},
		&SpatialFeatureGroup{},
		&SpatialFeature{},
		&AnalyzerConfig{},
		&AnalyzerResult{},
		&SpeedProfile{},
		&Event{},
		&EventRevision{},
		&EventNote{},
		&EventType{},
		&AlertRule{},
		&NotificationMethod{},
		&EventNotification{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		logging.ForService("datastore").Debug("database connection initialized",
			"db_type", dbType, "connection", connectionInfo)
	}
	return nil
}
