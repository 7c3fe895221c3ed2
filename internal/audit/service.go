// Package audit adalah event-sink: konsumsi envelope dari kafka, tulis
// append-only ke audit_events. Delivery at-least-once, jadi consumer
// wajib idempotent by event_id (dedup redis + unique index DB).
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
	kafkax "github.com/ariefcatur/go-checkout-engine.git/internal/kafka"
	"github.com/ariefcatur/go-checkout-engine.git/internal/redisx"
)

// Execer dipenuhi *pgxpool.Pool; interface-nya di sini supaya handler
// bisa ditest tanpa postgres beneran.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Service struct {
	DB          Execer
	Redis       *redis.Client
	ServiceName string
}

// HandleEvent dipasang sebagai handler consumer. Return nil = boleh
// commit offset.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Pesan korup jangan bikin partition macet; catat lalu lanjut.
		return s.insertMalformed(ctx, m.Value)
	}

	// Dedup via redis (pakai event_id); unique index DB jadi lapis kedua.
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	if err := s.insert(ctx, env); err != nil {
		return err
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	// Checkout sukses -> refresh cache status order, jadi GET /orders/{id}
	// kebaca cepat walau instance API yang handle beda.
	if env.EventType == events.EventCheckoutCompleted {
		if p, err := kafkax.UnwrapPayload[events.CheckoutCompletedPayload](env.Payload); err == nil && p.OrderID != "" {
			skey := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
			_ = s.Redis.Set(ctx, skey, `{"status":"PLACED"}`, redisx.TTLStatusCache).Err()
		}
	}
	return nil
}

func (s *Service) insert(ctx context.Context, env events.Envelope) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_events(event_id, event_type, event_version, occurred_at,
			producer, trace_id, correlation_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (event_id) DO NOTHING`,
		env.EventID, env.EventType, env.EventVersion, env.OccurredAt,
		env.Producer, env.TraceID, env.CorrelationID, []byte(env.Payload))
	return err
}

func (s *Service) insertMalformed(ctx context.Context, raw []byte) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_events(event_id, event_type, event_version, occurred_at,
			producer, trace_id, correlation_id, payload)
		VALUES (gen_random_uuid(), 'Malformed', 0, now(), $1, '', '', $2)`,
		s.ServiceName, raw)
	return err
}
