package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-checkout-engine.git/internal/kafka"
)

// Event adalah bentuk in-process sebelum dibungkus Envelope.
type Event struct {
	Type          string
	CorrelationID string
	TraceID       string
	Payload       any
}

// Emitter dipanggil dari critical path checkout; implementasi wajib
// non-blocking (audit latency jangan menahan checkout).
type Emitter interface {
	Emit(ev Event)
}

// KafkaEmitter membungkus Event jadi Envelope lalu lempar ke producer
// async. Producer sudah punya inbox buffered, jadi Emit cuma marshal +
// channel send.
type KafkaEmitter struct {
	Producer *kafkax.Producer
	Service  string
}

func (e *KafkaEmitter) Emit(ev Event) {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       ev.TraceID,
		CorrelationID: ev.CorrelationID,
		Payload:       kafkax.MustMarshal(ev.Payload),
	}
	e.Producer.Publish(PartitionKey(ev.CorrelationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Recorder untuk test: simpan event di memori.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// Nop buat komponen yang tidak butuh audit (mis. di bench).
type Nop struct{}

func (Nop) Emit(Event) {}
