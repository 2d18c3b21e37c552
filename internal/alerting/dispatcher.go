package alerting

import (
	"context"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/observability/metrics"
)

// Dispatcher fans one event change out to the distinct notification methods
// of all fired rules.
type Dispatcher struct {
	store   datastore.Interface
	sinks   map[string]Sink
	metrics *metrics.AlertingMetrics
}

// NewDispatcher builds a dispatcher. Metrics may be nil.
func NewDispatcher(store datastore.Interface, sinks map[string]Sink, m *metrics.AlertingMetrics) *Dispatcher {
	return &Dispatcher{store: store, sinks: sinks, metrics: m}
}

// Dispatch walks the fired rules in order, accumulating their active
// notification methods by method id: the first rule to claim a method wins
// and later rules cannot re-queue it. Methods are re-read here rather than
// carried over from evaluation, since their active flags may have changed.
// A failing channel is logged and counted; the rest of the fan-out
// continues.
func (d *Dispatcher) Dispatch(ctx context.Context, event *datastore.Event, fired []datastore.AlertRule, msgCtx MessageContext) error {
	seen := make(map[string]struct{})

	for i := range fired {
		rule := fired[i]
		methods, err := d.store.ActiveNotificationMethodsForRule(rule.ID)
		if err != nil {
			logger.Error("failed to load notification methods",
				"rule", rule.Title, "error", err)
			continue
		}

		for _, method := range methods {
			if _, dup := seen[method.ID]; dup {
				continue
			}
			seen[method.ID] = struct{}{}
			d.deliver(ctx, event, &method, msgCtx)
		}
	}
	return nil
}

// deliver renders and sends to one method, writing the audit row on success.
func (d *Dispatcher) deliver(ctx context.Context, event *datastore.Event, method *datastore.NotificationMethod, msgCtx MessageContext) {
	sink, ok := d.sinks[method.Method]
	if !ok {
		logger.Warn("no sink configured for channel",
			"channel", method.Method, "method_id", method.ID)
		d.recordDispatch(method.Method, "error")
		return
	}

	message, err := RenderMessage(method.Method, msgCtx)
	if err != nil {
		logger.Error("failed to render message",
			"channel", method.Method, "event_id", event.ID, "error", err)
		d.recordDispatch(method.Method, "error")
		return
	}

	if err := sink.Send(ctx, method.Value, message.Subject, message.Body); err != nil {
		logger.Error("notification delivery failed",
			"channel", method.Method, "method_id", method.ID,
			"event_id", event.ID, "error", err)
		d.recordDispatch(method.Method, "error")
		return
	}

	audit := &datastore.EventNotification{
		EventID:  event.ID,
		MethodID: method.ID,
		Method:   method.Method,
		Value:    method.Value,
		Owner:    method.Owner,
	}
	if err := d.store.InsertEventNotification(audit); err != nil {
		logger.Error("failed to record notification audit row",
			"event_id", event.ID, "method_id", method.ID, "error", err)
	}
	d.recordDispatch(method.Method, "success")

	logger.Info("notification sent",
		"channel", method.Method, "event_id", event.ID, "method_id", method.ID)
}

func (d *Dispatcher) recordDispatch(channel, status string) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(channel, status)
	}
}
