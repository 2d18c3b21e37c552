// config.go: settings struct and functions to load and access the
// fieldsight configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name      string // instance name, used in log and message rendering
	TimeAs24h bool   // true for 24-hour time format in rendered messages
	Log       LogConfig
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // listen address, e.g. "0.0.0.0:8090"
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSizeMB  int    // log file size limit before rotation
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to keep rotated files
}

// DatabaseSettings contains the persistent store configuration.
type DatabaseSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// AnalyzerSettings controls the analyzer runtime.
type AnalyzerSettings struct {
	Debug bool
	// HandleFixDelay is how long a subject task is deferred after a new fix,
	// so a burst of fixes for one subject squashes into a single run.
	HandleFixDelay time.Duration
	// TaskGraceWindow is the TTL of the unit-of-work lock that drops
	// duplicate concurrent runs of the same subject/event task.
	TaskGraceWindow time.Duration
	// Workers is the number of concurrent task workers.
	Workers int
	// AutoResolveInterval is how often the auto-resolve sweep runs.
	AutoResolveInterval time.Duration
	// EvaluationInterval is how often subjects with active configs are
	// scheduled for evaluation.
	EvaluationInterval time.Duration
}

// EnvironmentalSettings configures the remote raster sampling service
// used by the environmental analyzer.
type EnvironmentalSettings struct {
	Endpoint string // raster sampling service base URL
	APIKey   string
	Timeout  time.Duration
}

// ChannelSettings configures one outbound delivery channel.
type ChannelSettings struct {
	Enabled bool
	// URL is a shoutrrr service URL template; the recipient is filled in
	// at dispatch time.
	URL string
}

// AlertingSettings configures rule evaluation and notification dispatch.
type AlertingSettings struct {
	Debug    bool
	SiteName string // rendered into message headers and links
	SiteURL  string
	Email    ChannelSettings
	SMS      ChannelSettings
	WhatsApp ChannelSettings
}

// Settings is the root configuration type.
type Settings struct {
	Main          MainSettings
	Telemetry     TelemetrySettings
	Database      DatabaseSettings
	Analyzer      AnalyzerSettings
	Environmental EnvironmentalSettings
	Alerting      AlertingSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, applies defaults and validates the
// result. The loaded settings become the process-wide instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets up config file discovery and defaults.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// First run: defaults apply, leave an editable template behind.
		if path, err := createDefaultConfig(); err == nil {
			log.Printf("created default config file at %s", path)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "fieldsight"),
		"/etc/fieldsight",
	}, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the process-wide settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
