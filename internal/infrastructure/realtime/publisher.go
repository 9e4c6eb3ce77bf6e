package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pusher/pusher-http-go/v5"
)

const defaultRequestTimeout = 10 * time.Second

// Credentials identifies a Pusher Channels app.
type Credentials struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
}

type triggerer interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// Publisher pushes events to Pusher channels. Failures are logged and dropped.
type Publisher struct {
	client triggerer
	logger *slog.Logger
}

// NewPublisher creates a Pusher-backed publisher over TLS.
func NewPublisher(creds Credentials, logger *slog.Logger) *Publisher {
	client := &pusher.Client{
		AppID:      creds.AppID,
		Key:        creds.Key,
		Secret:     creds.Secret,
		Cluster:    creds.Cluster,
		Secure:     true,
		HTTPClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	return newPublisher(client, logger)
}

func newPublisher(client triggerer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger}
}

// Publish triggers event on channel. It never returns an error to the caller.
func (p *Publisher) Publish(channel, event string, payload any) {
	if err := p.client.Trigger(channel, event, payload); err != nil {
		p.logger.Warn("publish progress event", "channel", channel, "event", event, "error", err)
		return
	}
	p.logger.Debug("published progress event", "channel", channel, "event", event)
}

// Noop stands in when no Pusher credentials are configured.
type Noop struct {
	Logger *slog.Logger
}

// Publish only logs the event.
func (n Noop) Publish(channel, event string, payload any) {
	if n.Logger == nil {
		return
	}
	n.Logger.Debug("real-time channel disabled, dropping event", "channel", channel, "event", event)
}
