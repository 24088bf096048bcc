// Package notify publishes application events to NATS so external
// consumers (dashboards, automations) can react without polling the API.
// The publisher is optional: when no broker is configured the rest of the
// system runs unchanged.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectJobUpdate   = "timelapse.job.update"
	SubjectVideoUpdate = "timelapse.video.update"
)

// Publisher pushes JSON events onto NATS subjects.
type Publisher struct {
	nc *nats.Conn
}

// New connects to the broker. Reconnects are handled by the client;
// publishes during an outage are dropped, not queued forever.
func New(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// Publish sends one event. Delivery is best-effort: failures are logged,
// never propagated.
func (p *Publisher) Publish(subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("NATS: failed to marshal event: %v", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("NATS: failed to publish to %s: %v", subject, err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
