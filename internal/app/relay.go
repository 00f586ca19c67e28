package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

const DefaultChangeTopic = "board.changes"

// ChangeMessage is the broker payload for one committed change.
type ChangeMessage struct {
	ProjectID domain.ProjectID   `json:"projectId"`
	Event     domain.ChangeEvent `json:"event"`
}

// Relay carries change notifications from the internal write path through
// the broker and into the hub. Every server instance subscribes, so each
// one fans out to its own connected sessions.
type Relay struct {
	hub   *core.Hub
	pub   message.Publisher
	sub   message.Subscriber
	topic string

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRelay(hub *core.Hub, pub message.Publisher, sub message.Subscriber, topic string) *Relay {
	if topic == "" {
		topic = DefaultChangeTopic
	}
	return &Relay{hub: hub, pub: pub, sub: sub, topic: topic, ready: make(chan struct{})}
}

func (r *Relay) String() string { return "change-relay" }

// Ready is closed once the relay subscribed to its topic.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// NotifyChange validates ev and hands it to the broker. It must only be
// called after the write it describes committed.
func (r *Relay) NotifyChange(ctx context.Context, project domain.ProjectID, ev domain.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ChangeMessage{ProjectID: project, Event: ev})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("entity", string(ev.Entity))
	msg.Metadata.Set("action", string(ev.Action))
	msg.SetContext(ctx)
	if err := r.pub.Publish(r.topic, msg); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	log.Debug().Str("module", "app.relay").Str("msg_id", msg.UUID).Str("room", string(project.RoomKey())).Str("type", ev.MessageType()).Msg("change published")
	return nil
}

// Serve consumes the topic until ctx is done.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.topic, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	log.Info().Str("module", "app.relay").Str("topic", r.topic).Msg("relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("change subscription closed")
			}
			r.handle(msg)
		}
	}
}

// handle always acks: there is no backlog, and a message that cannot be
// delivered now will never be deliverable.
func (r *Relay) handle(msg *message.Message) {
	defer msg.Ack()

	var cm ChangeMessage
	if err := json.Unmarshal(msg.Payload, &cm); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("msg_id", msg.UUID).Msg("malformed change message")
		return
	}
	sent, err := r.hub.Publish(cm.ProjectID, cm.Event)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("msg_id", msg.UUID).Str("room", string(cm.ProjectID.RoomKey())).Msg("change rejected")
		return
	}
	log.Debug().Str("module", "app.relay").Str("msg_id", msg.UUID).Str("room", string(cm.ProjectID.RoomKey())).Int("sent_to", sent).Msg("change delivered")
}
