package alerting

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/containrrr/shoutrrr"
	stypes "github.com/containrrr/shoutrrr/pkg/types"

	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/errors"
)

// Sink delivers one message to one recipient on one channel.
type Sink interface {
	Send(ctx context.Context, to, subject, body string) error
}

// sinkTimeout bounds a single delivery attempt.
const sinkTimeout = 30 * time.Second

// ShoutrrrSink delivers through a shoutrrr service URL. The configured URL
// is a template whose "{to}" slot receives the method's recipient value.
type ShoutrrrSink struct {
	channel     string
	urlTemplate string
}

// NewShoutrrrSink builds a sink for one channel.
func NewShoutrrrSink(channel, urlTemplate string) *ShoutrrrSink {
	return &ShoutrrrSink{channel: channel, urlTemplate: urlTemplate}
}

// Send implements Sink.
func (s *ShoutrrrSink) Send(_ context.Context, to, subject, body string) error {
	serviceURL := strings.ReplaceAll(s.urlTemplate, "{to}", to)

	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return errors.New(err).
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Context("channel", s.channel).
			Build()
	}
	sender.Timeout = sinkTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	params := stypes.Params{}
	if subject != "" {
		params.SetTitle(subject)
	}
	for _, sendErr := range sender.Send(body, &params) {
		if sendErr != nil {
			return errors.New(sendErr).
				Component("alerting").
				Category(errors.CategoryDelivery).
				Context("channel", s.channel).
				Build()
		}
	}
	return nil
}

// SinksFromConfig builds the sink per enabled channel.
func SinksFromConfig(settings *conf.Settings) map[string]Sink {
	sinks := make(map[string]Sink)
	channels := map[string]conf.ChannelSettings{
		"email":    settings.Alerting.Email,
		"sms":      settings.Alerting.SMS,
		"whatsapp": settings.Alerting.WhatsApp,
	}
	for channel, cs := range channels {
		if cs.Enabled && cs.URL != "" {
			sinks[channel] = NewShoutrrrSink(channel, cs.URL)
		}
	}
	return sinks
}
