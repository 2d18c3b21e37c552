package alerting

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/revision"
	"github.com/fieldsight/fieldsight-go/internal/schema"
)

// Priority display colors.
var priorityColors = map[string]string{
	"Red":   "#b00000",
	"Amber": "#d97900",
	"Green": "#00571c",
}

// FieldChange is one display-rendered before/after pair.
type FieldChange struct {
	Field  string
	Before string
	After  string
}

// MessageContext carries everything a channel template may render.
type MessageContext struct {
	Event         datastore.Event
	EventState    string
	PriorityLabel string
	PriorityColor string
	SiteName      string
	SiteURL       string
	ReportedBy    string
	Created       bool
	Changes       []FieldChange
	Notes         []string
}

// BuildContext assembles the shared message context for one event change.
// Detail values go through the event type's display schema so coded values
// render as labels.
func BuildContext(store datastore.Interface, provider schema.LookupProvider, event *datastore.Event, created bool, fieldsDiff, detailsDiff map[string]revision.Change, siteName, siteURL string) (MessageContext, error) {
	label := datastore.PriorityLabel(event.Priority)

	ctx := MessageContext{
		Event:         *event,
		EventState:    inferState(store, event, created),
		PriorityLabel: label,
		PriorityColor: priorityColors[label],
		SiteName:      siteName,
		SiteURL:       siteURL,
		ReportedBy:    event.ReportedBy,
		Created:       created,
	}

	resolved := schema.Resolved{}
	if provider != nil {
		if et, err := store.GetEventType(event.EventType); err == nil {
			if r, err := schema.Resolve(et.Schema, provider); err == nil {
				resolved = r
			} else {
				logger.Warn("failed to resolve display schema",
					"event_type", event.EventType, "error", err)
			}
		}
	}

	for field, change := range fieldsDiff {
		ctx.Changes = append(ctx.Changes, FieldChange{
			Field:  field,
			Before: formatValue(change.Old),
			After:  formatValue(change.New),
		})
	}
	for field, change := range detailsDiff {
		ctx.Changes = append(ctx.Changes, FieldChange{
			Field:  resolved.Title(field),
			Before: resolved.Label(field, change.Old),
			After:  resolved.Label(field, change.New),
		})
	}
	sort.Slice(ctx.Changes, func(i, j int) bool {
		return ctx.Changes[i].Field < ctx.Changes[j].Field
	})

	notes, err := store.NotesForEvent(event.ID)
	if err != nil {
		return MessageContext{}, err
	}
	for _, n := range notes {
		ctx.Notes = append(ctx.Notes, n.Text)
	}
	return ctx, nil
}

// inferState maps the event to its display state: resolved wins, otherwise
// a first-revision event is "new" and anything since is "active".
func inferState(store datastore.Interface, event *datastore.Event, created bool) string {
	if event.State == datastore.StateResolved {
		return datastore.StateResolved
	}
	if created {
		return datastore.StateNew
	}
	revs, err := store.LatestRevisions(event.ID, datastore.StreamEvent, 2)
	if err != nil || len(revs) <= 1 {
		return datastore.StateNew
	}
	return datastore.StateActive
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Message is one rendered notification.
type Message struct {
	Subject string
	Body    string
}

var emailTemplate = template.Must(template.New("email").Parse(
	`{{.SiteName}} alert: {{.Event.Title}}

Priority: {{.PriorityLabel}}
State: {{.EventState}}
Time: {{.Event.EventTime.Format "2006-01-02 15:04 MST"}}
{{- if .ReportedBy}}
Reported by: {{.ReportedBy}}
{{- end}}
{{- if .Changes}}

What changed:
{{- range .Changes}}
  {{.Field}}: {{if .Before}}{{.Before}} -> {{end}}{{.After}}
{{- end}}
{{- end}}
{{- if .Notes}}

Notes:
{{- range .Notes}}
  - {{.}}
{{- end}}
{{- end}}
{{- if .SiteURL}}

{{.SiteURL}}/events/{{.Event.SerialNumber}}
{{- end}}
`))

var smsTemplate = template.Must(template.New("sms").Parse(
	`{{.SiteName}} [{{.PriorityLabel}}]: {{.Event.Title}} ({{.EventState}})`))

var whatsappTemplate = template.Must(template.New("whatsapp").Parse(
	`*{{.SiteName}}* [{{.PriorityLabel}}]
{{.Event.Title}}
State: {{.EventState}}
{{- range .Changes}}
{{.Field}}: {{.After}}
{{- end}}`))

var channelTemplates = map[string]*template.Template{
	datastore.MethodEmail:    emailTemplate,
	datastore.MethodSMS:      smsTemplate,
	datastore.MethodWhatsApp: whatsappTemplate,
}

// RenderMessage renders the channel-appropriate message from a shared
// context.
func RenderMessage(channel string, ctx MessageContext) (Message, error) {
	tmpl, ok := channelTemplates[channel]
	if !ok {
		return Message{}, fmt.Errorf("no template for channel %q", channel)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, ctx); err != nil {
		return Message{}, fmt.Errorf("rendering %s message: %w", channel, err)
	}
	return Message{
		Subject: fmt.Sprintf("[%s] %s", ctx.PriorityLabel, ctx.Event.Title),
		Body:    body.String(),
	}, nil
}
