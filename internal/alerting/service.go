package alerting

import (
	"context"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
	"github.com/fieldsight/fieldsight-go/internal/revision"
	"github.com/fieldsight/fieldsight-go/internal/schema"
)

// Service wires the evaluator and dispatcher into the single entry point the
// task layer invokes for one event change.
type Service struct {
	store      datastore.Interface
	evaluator  *Evaluator
	dispatcher *Dispatcher
	provider   schema.LookupProvider
	siteName   string
	siteURL    string
}

// NewService builds the alerting service. Provider may be nil when no
// display schemas are in use; metrics may be nil.
func NewService(store datastore.Interface, sinks map[string]Sink, provider schema.LookupProvider, m *metrics.AlertingMetrics, siteName, siteURL string) *Service {
	return &Service{
		store:      store,
		evaluator:  NewEvaluator(store, m),
		dispatcher: NewDispatcher(store, sinks, m),
		provider:   provider,
		siteName:   siteName,
		siteURL:    siteURL,
	}
}

// EvaluateAlertRules runs rule evaluation and notification dispatch for one
// event change. Created marks a just-created event, which fires matching
// rules unconditionally.
func (s *Service) EvaluateAlertRules(ctx context.Context, eventID string, created bool) error {
	event, err := s.store.GetEvent(eventID)
	if err != nil {
		return err
	}

	fieldsDiff, err := s.streamDiff(eventID, datastore.StreamEvent)
	if err != nil {
		return err
	}
	detailsDiff, err := s.streamDiff(eventID, datastore.StreamDetails)
	if err != nil {
		return err
	}
	merged := revision.Merge(fieldsDiff, detailsDiff)

	fired, err := s.evaluator.FiredRules(&event, created, merged)
	if err != nil {
		return err
	}
	if len(fired) == 0 {
		logger.Debug("no rules fired", "event_id", eventID, "event_type", event.EventType)
		return nil
	}

	msgCtx, err := BuildContext(s.store, s.provider, &event, created, fieldsDiff, detailsDiff, s.siteName, s.siteURL)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, &event, fired, msgCtx)
}

// streamDiff diffs the latest revision of a stream against its predecessor.
// A first revision has nothing to diff against: created is the trigger then.
func (s *Service) streamDiff(eventID, stream string) (map[string]revision.Change, error) {
	revs, err := s.store.LatestRevisions(eventID, stream, 2)
	if err != nil {
		return nil, err
	}
	if len(revs) < 2 {
		return nil, nil
	}
	return revision.Diff(revs[0].Data, revs[1].Data, revision.DefaultIgnoredKeys), nil
}
