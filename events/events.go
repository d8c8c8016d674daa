// Package events publishes post lifecycle events for downstream consumers
// such as search indexers or notification services.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"blogfeed/metrics"
)

const (
	PostCreated = "post.created"
	PostDeleted = "post.deleted"
)

type Event struct {
	Type     string    `json:"type"`
	PostID   uint      `json:"post_id"`
	AuthorID uint      `json:"author_id"`
	GroupID  *uint     `json:"group_id,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type Kafka struct {
	w *kgo.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kgo.Writer{
		Addr:                   kgo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kgo.Hash{},
		RequiredAcks:           kgo.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// Publish keys messages by post id so every event of a post lands on the
// same partition in order.
func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = k.w.WriteMessages(ctx, kgo.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.PostID), 10)),
		Value: b,
		Time:  ev.At,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Events.WithLabelValues(ev.Type, outcome).Inc()
	return err
}

func (k *Kafka) Close() error { return k.w.Close() }
