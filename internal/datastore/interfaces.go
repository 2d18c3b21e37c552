// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines
// the operations the analyzer and alerting pipelines need.
type Interface interface {
	Open() error
	Close() error

	// Subjects and groups
	GetSubject(id string) (Subject, error)
	GetSubjectsInGroup(groupID string) ([]Subject, error)

	// Fixes
	InsertFix(fix *Fix) error
	// FixesForSubject returns fixes in descending time order. lastHours <= 0
	// means no lookback limit; a zero until means "now".
	FixesForSubject(subjectID string, lastHours float64, until time.Time) ([]Fix, error)
	LatestFix(subjectID string) (*Fix, error)

	// Analyzer configuration and results
	ActiveAnalyzerConfigsForSubject(subjectID string) ([]AnalyzerConfig, error)
	SubjectsWithActiveConfigs() ([]Subject, error)
	GetSpeedProfile(subjectID string) (*SpeedProfile, error)
	FeaturesInGroup(groupID string) ([]SpatialFeature, error)
	LatestAnalyzerResult(subjectID, configID string) (*AnalyzerResult, error)
	SaveAnalyzerResult(result *AnalyzerResult) error

	// Events and revisions
	CreateEvent(event *Event, actor string) error
	GetEvent(id string) (Event, error)
	UpdateEvent(event *Event, actor string) error
	FindEventAt(subjectID, eventType string, eventTime time.Time, lon, lat float64) (*Event, error)
	EventsDueForAutoResolve(now time.Time) ([]Event, error)
	LatestRevisions(eventID, stream string, n int) ([]EventRevision, error)
	NotesForEvent(eventID string) ([]EventNote, error)

	// Event types
	GetEventType(value string) (EventType, error)
	EnsureEventType(et *EventType) error

	// Alerting
	ActiveAlertRulesForEventType(eventType string) ([]AlertRule, error)
	ActiveNotificationMethodsForRule(ruleID string) ([]NotificationMethod, error)
	InsertEventNotification(n *EventNotification) error
	EventNotificationsForEvent(eventID string) ([]EventNotification, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// GetSubject retrieves a subject by id.
func (ds *DataStore) GetSubject(id string) (Subject, error) {
	var subject Subject
	if err := ds.DB.First(&subject, "id = ?", id).Error; err != nil {
		return Subject{}, fmt.Errorf("getting subject %s: %w", id, err)
	}
	return subject, nil
}

// GetSubjectsInGroup returns the subjects belonging to a group.
func (ds *DataStore) GetSubjectsInGroup(groupID string) ([]Subject, error) {
	var group SubjectGroup
	if err := ds.DB.Preload("Subjects").First(&group, "id = ?", groupID).Error; err != nil {
		return nil, fmt.Errorf("getting subject group %s: %w", groupID, err)
	}
	return group.Subjects, nil
}

// InsertFix stores a new location fix.
func (ds *DataStore) InsertFix(fix *Fix) error {
	if err := ds.DB.Create(fix).Error; err != nil {
		return fmt.Errorf("saving fix: %w", err)
	}
	return nil
}

// FixesForSubject returns fixes in descending time order.
func (ds *DataStore) FixesForSubject(subjectID string, lastHours float64, until time.Time) ([]Fix, error) {
	q := ds.DB.Where("subject_id = ?", subjectID)
	if until.IsZero() {
		until = time.Now().UTC()
	}
	q = q.Where("recorded_at <= ?", until)
	if lastHours > 0 {
		since := until.Add(-time.Duration(lastHours * float64(time.Hour)))
		q = q.Where("recorded_at >= ?", since)
	}
	var fixes []Fix
	if err := q.Order("recorded_at DESC").Find(&fixes).Error; err != nil {
		return nil, fmt.Errorf("getting fixes for subject %s: %w", subjectID, err)
	}
	return fixes, nil
}

// LatestFix returns the most recent fix for a subject, or nil when none exist.
func (ds *DataStore) LatestFix(subjectID string) (*Fix, error) {
	var fix Fix
	err := ds.DB.Where("subject_id = ?", subjectID).Order("recorded_at DESC").First(&fix).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest fix for subject %s: %w", subjectID, err)
	}
	return &fix, nil
}

// ActiveAnalyzerConfigsForSubject returns the active configs bound to any of
// the subject's groups. Configs of different kinds may apply simultaneously.
func (ds *DataStore) ActiveAnalyzerConfigsForSubject(subjectID string) ([]AnalyzerConfig, error) {
	var configs []AnalyzerConfig
	err := ds.DB.
		Where("is_active = ?", true).
		Where("subject_group_id IN (?)",
			ds.DB.Table("subject_group_members").Select("subject_group_id").Where("subject_id = ?", subjectID)).
		Order("name").
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("getting analyzer configs for subject %s: %w", subjectID, err)
	}
	return configs, nil
}

// SubjectsWithActiveConfigs returns the active subjects belonging to any
// group an active analyzer config is bound to. The periodic evaluation pass
// walks this set.
func (ds *DataStore) SubjectsWithActiveConfigs() ([]Subject, error) {
	var subjects []Subject
	err := ds.DB.
		Where("is_active = ?", true).
		Where("id IN (?)",
			ds.DB.Table("subject_group_members").Select("subject_id").Where("subject_group_id IN (?)",
				ds.DB.Model(&AnalyzerConfig{}).Select("subject_group_id").Where("is_active = ?", true))).
		Order("name").
		Find(&subjects).Error
	if err != nil {
		return nil, fmt.Errorf("getting subjects with active configs: %w", err)
	}
	return subjects, nil
}

// GetSpeedProfile returns the subject's speed profile, or nil when absent.
func (ds *DataStore) GetSpeedProfile(subjectID string) (*SpeedProfile, error) {
	var profile SpeedProfile
	err := ds.DB.Where("subject_id = ?", subjectID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting speed profile for subject %s: %w", subjectID, err)
	}
	return &profile, nil
}

// FeaturesInGroup returns the spatial features of a feature group.
func (ds *DataStore) FeaturesInGroup(groupID string) ([]SpatialFeature, error) {
	if groupID == "" {
		return nil, nil
	}
	var features []SpatialFeature
	if err := ds.DB.Where("group_id = ?", groupID).Find(&features).Error; err != nil {
		return nil, fmt.Errorf("getting features in group %s: %w", groupID, err)
	}
	return features, nil
}

// LatestAnalyzerResult returns the last persisted result for a
// (subject, config) pair, or nil when none has been persisted yet.
func (ds *DataStore) LatestAnalyzerResult(subjectID, configID string) (*AnalyzerResult, error) {
	var result AnalyzerResult
	err := ds.DB.
		Where("subject_id = ? AND analyzer_config_id = ?", subjectID, configID).
		Order("estimated_time DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest analyzer result: %w", err)
	}
	return &result, nil
}

// SaveAnalyzerResult appends a new analyzer result row.
func (ds *DataStore) SaveAnalyzerResult(result *AnalyzerResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if err := ds.DB.Create(result).Error; err != nil {
		return fmt.Errorf("saving analyzer result: %w", err)
	}
	return nil
}

// sequenceRetries is how many times a revision write is retried when the
// (event, stream, sequence) unique index reports a collision with a
// concurrent writer.
const sequenceRetries = 3

// CreateEvent stores a new event, assigns its serial number and appends the
// initial revision for both streams inside one transaction.
func (ds *DataStore) CreateEvent(event *Event, actor string) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.State == "" {
		event.State = StateNew
	}

	return ds.withSequenceRetry(func() error {
		return ds.DB.Transaction(func(tx *gorm.DB) error {
			var maxSerial int64
			row := tx.Model(&Event{}).Select("COALESCE(MAX(serial_number), 0)").Row()
			if err := row.Scan(&maxSerial); err != nil {
				return fmt.Errorf("scanning max serial number: %w", err)
			}
			event.SerialNumber = maxSerial + 1

			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("creating event: %w", err)
			}
			if err := appendRevision(tx, event.ID, StreamEvent, ActionAdded, actor, EventFieldsSnapshot(event)); err != nil {
				return err
			}
			if len(event.Details) > 0 {
				if err := appendRevision(tx, event.ID, StreamDetails, ActionAdded, actor, event.Details); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// GetEvent retrieves an event by id.
func (ds *DataStore) GetEvent(id string) (Event, error) {
	var event Event
	if err := ds.DB.First(&event, "id = ?", id).Error; err != nil {
		return Event{}, fmt.Errorf("getting event %s: %w", id, err)
	}
	return event, nil
}

// UpdateEvent persists a mutation to an event and appends a revision per
// stream that actually changed, inside one transaction.
func (ds *DataStore) UpdateEvent(event *Event, actor string) error {
	return ds.withSequenceRetry(func() error {
		return ds.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(event).Error; err != nil {
				return fmt.Errorf("updating event: %w", err)
			}

			snapshot := EventFieldsSnapshot(event)
			changed, err := streamChanged(tx, event.ID, StreamEvent, snapshot)
			if err != nil {
				return err
			}
			if changed {
				if err := appendRevision(tx, event.ID, StreamEvent, ActionUpdated, actor, snapshot); err != nil {
					return err
				}
			}

			changed, err = streamChanged(tx, event.ID, StreamDetails, event.Details)
			if err != nil {
				return err
			}
			if changed {
				if err := appendRevision(tx, event.ID, StreamDetails, ActionUpdated, actor, event.Details); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// withSequenceRetry retries fn when the revision sequence unique index
// collides under concurrent writers. Giving up returns a data-integrity
// error; the revision is never silently dropped.
func (ds *DataStore) withSequenceRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < sequenceRetries; attempt++ {
		err = fn()
		if err == nil || !isDuplicateKeyError(err) {
			return err
		}
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDataIntegrity).
		Context("retries", sequenceRetries).
		Build()
}

// isDuplicateKeyError detects unique constraint violations across drivers.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// appendRevision writes the next revision for (event, stream). Sequence is
// max(existing)+1 computed inside the caller's transaction; the unique index
// on (event_id, stream, sequence) rejects concurrent duplicates.
func appendRevision(tx *gorm.DB, eventID, stream, action, actor string, data JSONMap) error {
	var maxSequence int
	row := tx.Model(&EventRevision{}).
		Where("event_id = ? AND stream = ?", eventID, stream).
		Select("COALESCE(MAX(sequence), 0)").Row()
	if err := row.Scan(&maxSequence); err != nil {
		return fmt.Errorf("scanning max revision sequence: %w", err)
	}

	rev := EventRevision{
		EventID:    eventID,
		Stream:     stream,
		Sequence:   maxSequence + 1,
		Action:     action,
		Actor:      actor,
		Data:       data,
		RevisionAt: time.Now().UTC(),
	}
	if err := tx.Create(&rev).Error; err != nil {
		return fmt.Errorf("appending %s revision for event %s: %w", stream, eventID, err)
	}
	return nil
}

// streamChanged reports whether data differs from the latest revision
// snapshot of the stream. A missing previous revision counts as changed
// only when data is non-empty.
func streamChanged(tx *gorm.DB, eventID, stream string, data JSONMap) (bool, error) {
	var prev EventRevision
	err := tx.Where("event_id = ? AND stream = ?", eventID, stream).
		Order("sequence DESC").First(&prev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return len(data) > 0, nil
		}
		return false, fmt.Errorf("getting latest %s revision: %w", stream, err)
	}
	return !snapshotsEqual(prev.Data, data), nil
}

// EventFieldsSnapshot renders the event's scalar fields as a revision
// snapshot. Details are carried by their own stream.
func EventFieldsSnapshot(e *Event) JSONMap {
	snap := JSONMap{
		"title":       e.Title,
		"event_type":  e.EventType,
		"state":       e.State,
		"priority":    float64(e.Priority),
		"event_time":  e.EventTime.UTC().Format(time.RFC3339Nano),
		"reported_by": e.ReportedBy,
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Latitude != nil {
		snap["latitude"] = *e.Latitude
	}
	if e.Longitude != nil {
		snap["longitude"] = *e.Longitude
	}
	return snap
}

// snapshotsEqual compares two snapshots after a JSON round trip so numeric
// types stored by different drivers compare equal.
func snapshotsEqual(a, b JSONMap) bool {
	av, err1 := a.Value()
	bv, err2 := b.Value()
	if err1 != nil || err2 != nil {
		return false
	}
	var am, bm map[string]any
	if json.Unmarshal([]byte(av.(string)), &am) != nil {
		return false
	}
	if json.Unmarshal([]byte(bv.(string)), &bm) != nil {
		return false
	}
	return reflect.DeepEqual(am, bm)
}

// FindEventAt locates an event by the exact (subject, type, time, location)
// tuple. Used for geofence duplicate suppression.
func (ds *DataStore) FindEventAt(subjectID, eventType string, eventTime time.Time, lon, lat float64) (*Event, error) {
	var event Event
	err := ds.DB.
		Where("subject_id = ? AND event_type = ? AND event_time = ?", subjectID, eventType, eventTime).
		Where("longitude = ? AND latitude = ?", lon, lat).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding event at tuple: %w", err)
	}
	return &event, nil
}

// EventsDueForAutoResolve returns unresolved events whose type carries an
// auto-resolve policy that has elapsed.
func (ds *DataStore) EventsDueForAutoResolve(now time.Time) ([]Event, error) {
	var types []EventType
	if err := ds.DB.Where("auto_resolve = ?", true).Find(&types).Error; err != nil {
		return nil, fmt.Errorf("getting auto-resolve event types: %w", err)
	}
	if len(types) == 0 {
		return nil, nil
	}

	resolveHours := make(map[string]float64, len(types))
	values := make([]string, 0, len(types))
	for _, et := range types {
		resolveHours[et.Value] = et.ResolveTimeHours
		values = append(values, et.Value)
	}

	var candidates []Event
	err := ds.DB.
		Where("event_type IN ?", values).
		Where("state <> ?", StateResolved).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("getting auto-resolve candidates: %w", err)
	}

	var due []Event
	for _, e := range candidates {
		deadline := e.CreatedAt.Add(time.Duration(resolveHours[e.EventType] * float64(time.Hour)))
		if !deadline.After(now) {
			due = append(due, e)
		}
	}
	return due, nil
}

// LatestRevisions returns the newest n revisions of a stream, newest first.
func (ds *DataStore) LatestRevisions(eventID, stream string, n int) ([]EventRevision, error) {
	var revisions []EventRevision
	err := ds.DB.
		Where("event_id = ? AND stream = ?", eventID, stream).
		Order("sequence DESC").
		Limit(n).
		Find(&revisions).Error
	if err != nil {
		return nil, fmt.Errorf("getting revisions for event %s: %w", eventID, err)
	}
	return revisions, nil
}

// NotesForEvent returns the event's notes, newest first.
func (ds *DataStore) NotesForEvent(eventID string) ([]EventNote, error) {
	var notes []EventNote
	err := ds.DB.Where("event_id = ?", eventID).Order("updated_at DESC").Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("getting notes for event %s: %w", eventID, err)
	}
	return notes, nil
}

// GetEventType retrieves an event type by value.
func (ds *DataStore) GetEventType(value string) (EventType, error) {
	var et EventType
	if err := ds.DB.First(&et, "value = ?", value).Error; err != nil {
		return EventType{}, fmt.Errorf("getting event type %s: %w", value, err)
	}
	return et, nil
}

// EnsureEventType creates the event type when missing; existing rows win.
func (ds *DataStore) EnsureEventType(et *EventType) error {
	err := ds.DB.Where("value = ?", et.Value).FirstOrCreate(et).Error
	if err != nil {
		return fmt.Errorf("ensuring event type %s: %w", et.Value, err)
	}
	return nil
}

// ActiveAlertRulesForEventType returns the active rules watching the event
// type, ordered by order number then title.
func (ds *DataStore) ActiveAlertRulesForEventType(eventType string) ([]AlertRule, error) {
	var rules []AlertRule
	err := ds.DB.
		Where("is_active = ?", true).
		Where("event_types LIKE ?", "%\""+eventType+"\"%").
		Order("order_num, title").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("getting alert rules for event type %s: %w", eventType, err)
	}
	return rules, nil
}

// ActiveNotificationMethodsForRule re-reads the rule's active methods. The
// active flag may change concurrently with dispatch, so this is never cached.
func (ds *DataStore) ActiveNotificationMethodsForRule(ruleID string) ([]NotificationMethod, error) {
	var methods []NotificationMethod
	err := ds.DB.
		Where("is_active = ?", true).
		Where("id IN (?)",
			ds.DB.Table("alert_rule_methods").Select("notification_method_id").Where("alert_rule_id = ?", ruleID)).
		Order("id").
		Find(&methods).Error
	if err != nil {
		return nil, fmt.Errorf("getting notification methods for rule %s: %w", ruleID, err)
	}
	return methods, nil
}

// InsertEventNotification records a successful send.
func (ds *DataStore) InsertEventNotification(n *EventNotification) error {
	if err := ds.DB.Create(n).Error; err != nil {
		return fmt.Errorf("saving event notification: %w", err)
	}
	return nil
}

// EventNotificationsForEvent returns the audit rows for an event.
func (ds *DataStore) EventNotificationsForEvent(eventID string) ([]EventNotification, error) {
	var rows []EventNotification
	err := ds.DB.Where("event_id = ?", eventID).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("getting notifications for event %s: %w", eventID, err)
	}
	return rows, nil
}
