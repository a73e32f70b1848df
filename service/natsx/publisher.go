// Package natsx publishes presence transitions for downstream
// consumers (notification workers, analytics). Delivery to sockets
// never depends on this path.
package natsx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type PublisherConf struct {
	URL           string
	Name          string        // client name shown on the NATS server
	SubjectPrefix string        // e.g. "presence" -> presence.online / presence.offline
	Timeout       time.Duration // connect timeout
}

func (c *PublisherConf) norm() {
	if c.Name == "" {
		c.Name = "amora-gateway"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "presence"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func NewPublisher(conf PublisherConf) (*Publisher, error) {
	conf.norm()
	nc, err := nats.Connect(conf.URL,
		nats.Name(conf.Name),
		nats.Timeout(conf.Timeout),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "natsx: connect")
	}
	return &Publisher{nc: nc, prefix: conf.SubjectPrefix}, nil
}

// transitionEvent is the published payload. ExternalID is the
// client-facing user id; consumers resolve anything else themselves.
type transitionEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
	TS     int64  `json:"ts"`
}

// PublishTransition emits one presence transition. Fire-and-forget at
// the NATS core level; callers treat errors as log-only.
func (p *Publisher) PublishTransition(_ context.Context, externalID string, online bool) error {
	subject := p.prefix + ".offline"
	if online {
		subject = p.prefix + ".online"
	}
	payload, err := json.Marshal(transitionEvent{
		UserID: externalID,
		Online: online,
		TS:     time.Now().UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "natsx: marshal")
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		return errors.Wrap(err, "natsx: publish")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
