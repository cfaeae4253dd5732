// Package trigger carries sync and poll requests over gocloud.dev/pubsub.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"gocloud.dev/pubsub"
)

type Kind string

const (
	KindSync Kind = "sync"
	KindPoll Kind = "poll"
)

// Message asks for a backfill of one channel (sync) or a feature refresh of a
// device (poll). Start and End are optional for sync; zero means the
// configured lookback window.
type Message struct {
	ID       string    `cbor:"1,keyasint"`
	Kind     Kind      `cbor:"2,keyasint"`
	DeviceID string    `cbor:"3,keyasint"`
	Channel  string    `cbor:"4,keyasint,omitempty"`
	Start    time.Time `cbor:"5,keyasint"`
	End      time.Time `cbor:"6,keyasint"`
}

var ErrMalformed = errors.New("malformed trigger")

func NewSync(deviceID, channel string, start, end time.Time) Message {
	return Message{ID: uuid.NewString(), Kind: KindSync, DeviceID: deviceID, Channel: channel, Start: start, End: end}
}

func NewPoll(deviceID string) Message {
	return Message{ID: uuid.NewString(), Kind: KindPoll, DeviceID: deviceID}
}

// HasWindow reports whether the message narrows the sync window.
func (m Message) HasWindow() bool {
	return !m.Start.IsZero() && m.End.After(m.Start)
}

func (m Message) validate() error {
	switch m.Kind {
	case KindSync:
		if m.Channel == "" {
			return fmt.Errorf("%w: sync without channel", ErrMalformed)
		}
	case KindPoll:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	if m.DeviceID == "" {
		return fmt.Errorf("%w: missing device", ErrMalformed)
	}
	return nil
}

func Encode(m Message) (*pubsub.Message, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	body, err := cbor.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"deviceID": m.DeviceID,
			"kind":     string(m.Kind),
			"time":     time.Now().Format(time.RFC3339),
		},
	}, nil
}

func Decode(msg *pubsub.Message) (Message, error) {
	var m Message
	if err := cbor.Unmarshal(msg.Body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Publisher sends triggers to a topic.
type Publisher struct {
	topic  *pubsub.Topic
	logger *log.Entry
}

func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{
		topic:  topic,
		logger: log.WithField("module", "trigger-publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, m Message) error {
	msg, err := Encode(m)
	if err != nil {
		return err
	}
	if err := p.topic.Send(ctx, msg); err != nil {
		return fmt.Errorf("publish %s trigger: %w", m.Kind, err)
	}
	p.logger.WithFields(log.Fields{"id": m.ID, "device": m.DeviceID, "kind": m.Kind}).Debug("trigger sent")
	return nil
}

// Router sends each trigger to the publisher of its kind.
type Router map[Kind]*Publisher

func (r Router) Publish(ctx context.Context, m Message) error {
	p, ok := r[m.Kind]
	if !ok {
		return fmt.Errorf("%w: no topic for kind %q", ErrMalformed, m.Kind)
	}
	return p.Publish(ctx, m)
}
