// model.go this code defines the data model for the application
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a map column stored as JSON text.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
}

// StringSlice is a string list column stored as JSON text.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type %T for StringSlice", value)
	}
}

// Subject is a tracked entity (animal, vehicle, person).
type Subject struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Name      string `gorm:"index"`
	IsActive  bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Groups    []SubjectGroup `gorm:"many2many:subject_group_members"`
}

// SubjectGroup is a named collection of subjects that analyzer configs and
// proximity targets are bound to.
type SubjectGroup struct {
	ID       string    `gorm:"primaryKey;type:varchar(36)"`
	Name     string    `gorm:"uniqueIndex"`
	Subjects []Subject `gorm:"many2many:subject_group_members"`
}

// Fix is a single timestamped location sample for a subject. Immutable once
// recorded.
type Fix struct {
	ID         uint      `gorm:"primaryKey"`
	SubjectID  string    `gorm:"index:idx_fixes_subject_time;type:varchar(36);not null"`
	RecordedAt time.Time `gorm:"index:idx_fixes_subject_time"`
	Latitude   float64
	Longitude  float64
	Attributes JSONMap `gorm:"type:text"`
}

// SpatialFeatureGroup is a named collection of spatial features, used for
// fence sets, containment regions and proximity targets.
type SpatialFeatureGroup struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Name     string `gorm:"uniqueIndex"`
	Features []SpatialFeature `gorm:"foreignKey:GroupID"`
}

// SpatialFeature is a named geometry. Kind is one of "point", "polyline" or
// "polygon"; Geometry holds the vertex list as JSON [[lon,lat], ...].
type SpatialFeature struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	GroupID  string `gorm:"index;type:varchar(36)"`
	Name     string
	Kind     string `gorm:"type:varchar(16)"`
	Geometry string `gorm:"type:text"`
}

// AnalyzerConfig binds one analyzer kind with its parameters to a subject
// group. Read-only to the analyzer runtime.
type AnalyzerConfig struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	Name           string `gorm:"uniqueIndex"`
	Kind           string `gorm:"index;type:varchar(32)"`
	SubjectGroupID string `gorm:"index;type:varchar(36)"`
	IsActive       bool   `gorm:"index"`
	// SearchTimeHours is the analysis lookback window; <= 0 means all data.
	SearchTimeHours float64
	// QuietPeriod throttles re-evaluation after an event was created.
	QuietPeriod time.Duration
	// Parameters holds kind-specific thresholds (threshold_radius,
	// threshold_time, threshold_probability, threshold_dist_meters, ...).
	Parameters JSONMap `gorm:"type:text"`
	// Optional spatial feature group bindings, by analyzer kind.
	CriticalFenceGroupID string `gorm:"type:varchar(36)"`
	WarningFenceGroupID  string `gorm:"type:varchar(36)"`
	ContainmentGroupID   string `gorm:"type:varchar(36)"`
	ProximalGroupID      string `gorm:"type:varchar(36)"`
	SecondSubjectGroupID string `gorm:"type:varchar(36)"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FloatParam reads a float parameter, falling back when absent.
func (c *AnalyzerConfig) FloatParam(key string, fallback float64) float64 {
	if v, ok := c.Parameters[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	}
	return fallback
}

// StringParam reads a string parameter, falling back when absent.
func (c *AnalyzerConfig) StringParam(key, fallback string) string {
	if v, ok := c.Parameters[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// AnalyzerResult is the persisted outcome of one analyzer run for one
// (subject, config) pair. Append-only; later results are new rows.
type AnalyzerResult struct {
	ID               string `gorm:"primaryKey;type:varchar(36)"`
	AnalyzerConfigID string `gorm:"index:idx_results_config_subject;type:varchar(36)"`
	SubjectID        string `gorm:"index:idx_results_config_subject;type:varchar(36)"`
	Level            int
	Title            string
	Message          string
	EstimatedTime    time.Time `gorm:"index"`
	Latitude         float64
	Longitude        float64
	Values           JSONMap `gorm:"type:text"`
	CreatedAt        time.Time
}

// Event state values.
const (
	StateNew      = "new"
	StateActive   = "active"
	StateResolved = "resolved"
)

// Event priority values.
const (
	PriReference = 100
	PriImportant = 200
	PriUrgent    = 300
)

// Event provenance values.
const (
	ProvenanceAnalyzer = "analyzer"
	ProvenanceStaff    = "staff"
)

// PriorityLabel maps a priority value to its display label.
func PriorityLabel(priority int) string {
	switch priority {
	case PriUrgent:
		return "Red"
	case PriImportant:
		return "Amber"
	case PriReference:
		return "Green"
	default:
		return "None"
	}
}

// Event is a domain record of something that happened. Mutations go through
// the store so every change appends an EventRevision.
type Event struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	SerialNumber int64  `gorm:"uniqueIndex"`
	Title        string
	EventType    string `gorm:"index;type:varchar(64)"`
	State        string `gorm:"index;type:varchar(16)"`
	Priority     int
	EventTime    time.Time `gorm:"index"`
	Latitude     *float64
	Longitude    *float64
	Details      JSONMap `gorm:"type:text"`
	Provenance   string  `gorm:"type:varchar(32)"`
	ReportedBy   string
	SubjectID    string `gorm:"index;type:varchar(36)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Revision streams. Each event carries two independent revision streams:
// one over its scalar fields and one over the details payload.
const (
	StreamEvent   = "event"
	StreamDetails = "details"
)

// Revision actions.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
)

// EventRevision is an immutable snapshot of an event's fields or details,
// totally ordered per (event, stream) by Sequence.
type EventRevision struct {
	ID         uint   `gorm:"primaryKey"`
	EventID    string `gorm:"uniqueIndex:idx_revision_seq;type:varchar(36);not null"`
	Stream     string `gorm:"uniqueIndex:idx_revision_seq;type:varchar(16)"`
	Sequence   int    `gorm:"uniqueIndex:idx_revision_seq"`
	Action     string `gorm:"type:varchar(10)"`
	Actor      string
	Data       JSONMap   `gorm:"type:text"`
	RevisionAt time.Time `gorm:"index"`
}

// EventNote is a free-form note attached to an event.
type EventNote struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"index;type:varchar(36)"`
	Text      string `gorm:"type:text"`
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventType describes a kind of event: display name, detail display schema
// and auto-resolution policy.
type EventType struct {
	Value            string `gorm:"primaryKey;type:varchar(64)"`
	Display          string
	Schema           string `gorm:"type:text"`
	AutoResolve      bool
	ResolveTimeHours float64
}

// AlertRule is an operator-owned rule: which event types it watches, an
// optional condition tree, an optional weekly schedule and the notification
// methods to target, in priority order.
type AlertRule struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Title      string
	OrderNum   int  `gorm:"index"`
	IsActive   bool `gorm:"index"`
	EventTypes StringSlice `gorm:"type:text"`
	// Conditions is the declarative tree {"all": [{name, value, operator}]}.
	// Empty or absent means unconditional.
	Conditions JSONMap `gorm:"type:text"`
	// Schedule is a weekly window spec: {"mon": [["08:00","17:00"]], ...}.
	// Empty means always on.
	Schedule            JSONMap              `gorm:"type:text"`
	NotificationMethods []NotificationMethod `gorm:"many2many:alert_rule_methods"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsConditional reports whether the rule carries condition clauses.
func (r *AlertRule) IsConditional() bool {
	clauses, ok := r.Conditions["all"].([]any)
	return ok && len(clauses) > 0
}

// Notification method kinds.
const (
	MethodEmail    = "email"
	MethodSMS      = "sms"
	MethodWhatsApp = "whatsapp"
)

// NotificationMethod is a channel endpoint owned by a user.
type NotificationMethod struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Owner    string
	Method   string `gorm:"type:varchar(16)"`
	Value    string
	IsActive bool `gorm:"index"`
}

// EventNotification is the audit row written after a successful send.
type EventNotification struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"index;type:varchar(36)"`
	MethodID  string `gorm:"type:varchar(36)"`
	Method    string `gorm:"type:varchar(16)"`
	Value     string
	Owner     string
	CreatedAt time.Time
}

// SpeedProfile holds a subject's speed distribution percentiles, keyed by
// percentile name ("0.1", "0.25", ...) with km/h values.
type SpeedProfile struct {
	ID          uint    `gorm:"primaryKey"`
	SubjectID   string  `gorm:"uniqueIndex;type:varchar(36)"`
	Percentiles JSONMap `gorm:"type:text"`
	UpdatedAt   time.Time
}
