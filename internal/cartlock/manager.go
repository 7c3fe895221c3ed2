// Package cartlock menyediakan mutual exclusion per cart_id: satu holder,
// waiter antri FIFO, lease keras supaya request yang crash tidak
// menyandera cart selamanya.
package cartlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
)

var ErrAcquireTimeout = errors.New("cartlock: acquire timeout")

// Handle bukti kepemilikan; Release tanpa token yg cocok jadi no-op.
type Handle struct {
	CartID     string
	Token      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

type waiter struct {
	ch         chan Handle
	enqueuedAt time.Time
	granted    bool
	gone       bool // waiter sudah timeout/cancel, skip saat handover
}

type lockState struct {
	holder     string
	acquiredAt time.Time
	expiresAt  time.Time
	leaseTimer *time.Timer
	waiters    []*waiter
}

type Manager struct {
	mu      sync.Mutex
	locks   map[string]*lockState
	lease   time.Duration
	emitter events.Emitter
}

func NewManager(lease time.Duration, emitter events.Emitter) *Manager {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Manager{
		locks:   make(map[string]*lockState),
		lease:   lease,
		emitter: emitter,
	}
}

// Acquire menunggu paling lama timeout. timeout=0 = try-lock: langsung
// ErrAcquireTimeout kalau lock sedang dipegang. Waiter dilayani sesuai
// urutan kedatangan.
func (m *Manager) Acquire(ctx context.Context, cartID string, timeout time.Duration) (Handle, error) {
	m.mu.Lock()
	st := m.locks[cartID]
	if st == nil {
		st = &lockState{}
		m.locks[cartID] = st
	}
	if st.holder == "" {
		h := m.grant(cartID, st, 0)
		m.mu.Unlock()
		return h, nil
	}
	if timeout <= 0 {
		m.mu.Unlock()
		m.emitter.Emit(events.Event{
			Type:          events.EventLockTimeout,
			CorrelationID: cartID,
			Payload:       events.LockEventPayload{CartID: cartID},
		})
		return Handle{}, ErrAcquireTimeout
	}

	w := &waiter{ch: make(chan Handle, 1), enqueuedAt: time.Now()}
	st.waiters = append(st.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case h := <-w.ch:
		return h, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timeout/cancel bisa balapan dengan handover; putuskan di bawah mutex.
	m.mu.Lock()
	if w.granted {
		m.mu.Unlock()
		// Sudah terlanjur dapat lock padahal caller batal: kembalikan
		// supaya tidak ada side effect dari acquire yang gagal. Event
		// acquired-nya sudah keluar saat handover, jadi jangan emit
		// timeout juga untuk waiter yang sama.
		h := <-w.ch
		m.Release(h)
		if err := ctx.Err(); err != nil {
			return Handle{}, err
		}
		return Handle{}, ErrAcquireTimeout
	}
	w.gone = true
	m.mu.Unlock()

	m.emitter.Emit(events.Event{
		Type:          events.EventLockTimeout,
		CorrelationID: cartID,
		Payload: events.LockEventPayload{
			CartID:   cartID,
			WaitedMS: time.Since(w.enqueuedAt).Milliseconds(),
		},
	})
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	return Handle{}, ErrAcquireTimeout
}

// Release idempotent: token yg sudah tidak jadi holder (double release,
// atau sudah di-expire paksa) tidak berefek apa-apa.
func (m *Manager) Release(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.locks[h.CartID]
	if st == nil || st.holder != h.Token {
		return
	}
	if st.leaseTimer != nil {
		st.leaseTimer.Stop()
	}
	m.handover(h.CartID, st)
}

// QueueLen untuk observability (jumlah waiter yg masih antri).
func (m *Manager) QueueLen(cartID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.locks[cartID]
	if st == nil {
		return 0
	}
	n := 0
	for _, w := range st.waiters {
		if !w.gone {
			n++
		}
	}
	return n
}

// grant dipanggil dengan m.mu dipegang.
func (m *Manager) grant(cartID string, st *lockState, waited time.Duration) Handle {
	token := uuid.NewString()
	now := time.Now()
	st.holder = token
	st.acquiredAt = now
	st.expiresAt = now.Add(m.lease)
	st.leaseTimer = time.AfterFunc(m.lease, func() { m.expire(cartID, token) })
	h := Handle{CartID: cartID, Token: token, AcquiredAt: now, ExpiresAt: st.expiresAt}
	m.emitter.Emit(events.Event{
		Type:          events.EventLockAcquired,
		CorrelationID: cartID,
		Payload: events.LockEventPayload{
			CartID:      cartID,
			HolderToken: token,
			WaitedMS:    waited.Milliseconds(),
		},
	})
	return h
}

// handover dipanggil dengan m.mu dipegang: admit waiter tertua yg belum
// gone, atau kosongkan lock.
func (m *Manager) handover(cartID string, st *lockState) {
	st.holder = ""
	st.leaseTimer = nil
	for len(st.waiters) > 0 {
		w := st.waiters[0]
		st.waiters = st.waiters[1:]
		if w.gone {
			continue
		}
		w.granted = true
		w.ch <- m.grant(cartID, st, time.Since(w.enqueuedAt))
		return
	}
	delete(m.locks, cartID)
}

// expire: safety net kalau holder crash tanpa Release. Waiter berikutnya
// langsung diadmit.
func (m *Manager) expire(cartID, token string) {
	m.mu.Lock()
	st := m.locks[cartID]
	if st == nil || st.holder != token {
		m.mu.Unlock()
		return
	}
	m.handover(cartID, st)
	m.mu.Unlock()
	m.emitter.Emit(events.Event{
		Type:          events.EventLockExpired,
		CorrelationID: cartID,
		Payload:       events.LockEventPayload{CartID: cartID, HolderToken: token},
	})
}
