package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/errors"
)

// recordingSink captures sends; failRecipients simulates channel errors.
type recordingSink struct {
	mu             sync.Mutex
	sent           []string
	failRecipients map[string]bool
}

func (s *recordingSink) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecipients[to] {
		return errors.Newf("gateway unreachable").
			Component("alerting").
			Category(errors.CategoryDelivery).
			Build()
	}
	s.sent = append(s.sent, to)
	return nil
}

func seedRuleWithMethods(t *testing.T, store *datastore.SQLiteStore, ruleID, title string, order int, methods ...datastore.NotificationMethod) {
	t.Helper()
	rule := datastore.AlertRule{
		ID: ruleID, Title: title, OrderNum: order, IsActive: true,
		EventTypes:          datastore.StringSlice{"immobility"},
		NotificationMethods: methods,
	}
	require.NoError(t, store.DB.Create(&rule).Error)
}

func createEvent(t *testing.T, store *datastore.SQLiteStore) *datastore.Event {
	t.Helper()
	event := &datastore.Event{
		Title:     "zebra-1 is immobile",
		EventType: "immobility",
		Priority:  datastore.PriUrgent,
		EventTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SubjectID: "s-1",
		Details:   datastore.JSONMap{"total_fix_count": 20.0},
	}
	require.NoError(t, store.CreateEvent(event, datastore.ProvenanceAnalyzer))
	return event
}

func TestDispatchDedupAcrossRules(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	shared := datastore.NotificationMethod{
		ID: "m-shared", Owner: "ops", Method: datastore.MethodEmail,
		Value: "ops@example.com", IsActive: true,
	}
	only := datastore.NotificationMethod{
		ID: "m-only", Owner: "ranger", Method: datastore.MethodEmail,
		Value: "ranger@example.com", IsActive: true,
	}
	seedRuleWithMethods(t, store, "r-1", "alpha", 0, shared)
	seedRuleWithMethods(t, store, "r-2", "bravo", 1, shared, only)

	event := createEvent(t, store)

	sink := &recordingSink{}
	d := NewDispatcher(store, map[string]Sink{datastore.MethodEmail: sink}, nil)

	var rules []datastore.AlertRule
	require.NoError(t, store.DB.Order("order_num").Find(&rules).Error)
	require.NoError(t, d.Dispatch(context.Background(), event, rules, MessageContext{Event: *event, SiteName: "fieldsight"}))

	// The shared method is delivered once even though both rules target it.
	assert.ElementsMatch(t, []string{"ops@example.com", "ranger@example.com"}, sink.sent)

	audits, err := store.EventNotificationsForEvent(event.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestDispatchFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	broken := datastore.NotificationMethod{
		ID: "m-broken", Owner: "a", Method: datastore.MethodEmail,
		Value: "broken@example.com", IsActive: true,
	}
	working := datastore.NotificationMethod{
		ID: "m-working", Owner: "b", Method: datastore.MethodEmail,
		Value: "working@example.com", IsActive: true,
	}
	seedRuleWithMethods(t, store, "r-1", "alpha", 0, broken, working)

	event := createEvent(t, store)

	sink := &recordingSink{failRecipients: map[string]bool{"broken@example.com": true}}
	d := NewDispatcher(store, map[string]Sink{datastore.MethodEmail: sink}, nil)

	var rules []datastore.AlertRule
	require.NoError(t, store.DB.Find(&rules).Error)
	require.NoError(t, d.Dispatch(context.Background(), event, rules, MessageContext{Event: *event}))

	assert.Equal(t, []string{"working@example.com"}, sink.sent)

	// Only the successful send leaves an audit row.
	audits, err := store.EventNotificationsForEvent(event.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "m-working", audits[0].MethodID)
}

func TestDispatchSkipsInactiveMethods(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	inactive := datastore.NotificationMethod{
		ID: "m-off", Owner: "a", Method: datastore.MethodEmail,
		Value: "off@example.com", IsActive: false,
	}
	seedRuleWithMethods(t, store, "r-1", "alpha", 0, inactive)

	event := createEvent(t, store)
	sink := &recordingSink{}
	d := NewDispatcher(store, map[string]Sink{datastore.MethodEmail: sink}, nil)

	var rules []datastore.AlertRule
	require.NoError(t, store.DB.Find(&rules).Error)
	require.NoError(t, d.Dispatch(context.Background(), event, rules, MessageContext{Event: *event}))
	assert.Empty(t, sink.sent)
}

func TestServiceEndToEnd(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	method := datastore.NotificationMethod{
		ID: "m-1", Owner: "ops", Method: datastore.MethodEmail,
		Value: "ops@example.com", IsActive: true,
	}
	seedRuleWithMethods(t, store, "r-1", "alpha", 0, method)

	event := createEvent(t, store)

	sink := &recordingSink{}
	svc := NewService(store, map[string]Sink{datastore.MethodEmail: sink}, nil, nil, "fieldsight", "https://fieldsight.example.com")

	// Creation trigger: fires unconditionally.
	require.NoError(t, svc.EvaluateAlertRules(context.Background(), event.ID, true))
	assert.Equal(t, []string{"ops@example.com"}, sink.sent)

	// A state change appends a revision; the unconditional rule fires
	// again on the change trigger.
	event.State = datastore.StateActive
	require.NoError(t, store.UpdateEvent(event, "staff"))
	require.NoError(t, svc.EvaluateAlertRules(context.Background(), event.ID, false))
	assert.Len(t, sink.sent, 2)
}

func TestRenderMessageChannels(t *testing.T) {
	t.Parallel()

	ctx := MessageContext{
		Event: datastore.Event{
			Title:        "zebra-1 is immobile",
			SerialNumber: 42,
			EventTime:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		EventState:    "new",
		PriorityLabel: "Red",
		PriorityColor: "#b00000",
		SiteName:      "fieldsight",
		SiteURL:       "https://fieldsight.example.com",
		Changes: []FieldChange{
			{Field: "Fix count", Before: "10", After: "20"},
		},
		Notes: []string{"ranger dispatched"},
	}

	email, err := RenderMessage(datastore.MethodEmail, ctx)
	require.NoError(t, err)
	assert.Equal(t, "[Red] zebra-1 is immobile", email.Subject)
	assert.Contains(t, email.Body, "Priority: Red")
	assert.Contains(t, email.Body, "Fix count: 10 -> 20")
	assert.Contains(t, email.Body, "ranger dispatched")
	assert.Contains(t, email.Body, "/events/42")

	sms, err := RenderMessage(datastore.MethodSMS, ctx)
	require.NoError(t, err)
	assert.Equal(t, "fieldsight [Red]: zebra-1 is immobile (new)", sms.Body)

	_, err = RenderMessage("carrier_pigeon", ctx)
	require.Error(t, err)
}
