// validate.go: configuration validation run after loading.
package conf

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError holds the accumulated configuration problems.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks the loaded settings for inconsistencies. All
// problems are reported in one pass.
func ValidateSettings(settings *Settings) error {
	if settings == nil {
		return errors.New("settings is nil")
	}

	var ve ValidationError

	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		ve.Errors = append(ve.Errors, "only one database type can be enabled at a time")
	}
	if !settings.Database.SQLite.Enabled && !settings.Database.MySQL.Enabled {
		ve.Errors = append(ve.Errors, "one database type must be enabled")
	}
	if settings.Database.SQLite.Enabled && settings.Database.SQLite.Path == "" {
		ve.Errors = append(ve.Errors, "sqlite database path is required")
	}

	if settings.Analyzer.Workers < 1 {
		ve.Errors = append(ve.Errors, "analyzer.workers must be at least 1")
	}
	if settings.Analyzer.TaskGraceWindow < 0 {
		ve.Errors = append(ve.Errors, "analyzer.taskgracewindow cannot be negative")
	}
	if settings.Analyzer.AutoResolveInterval < 0 {
		ve.Errors = append(ve.Errors, "analyzer.autoresolveinterval cannot be negative")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		ve.Errors = append(ve.Errors, "telemetry.listen is required when telemetry is enabled")
	}

	for name, ch := range map[string]ChannelSettings{
		"email":    settings.Alerting.Email,
		"sms":      settings.Alerting.SMS,
		"whatsapp": settings.Alerting.WhatsApp,
	} {
		if ch.Enabled && ch.URL == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("alerting.%s.url is required when the channel is enabled", name))
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
