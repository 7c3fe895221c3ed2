// Package ledger adalah sumber kebenaran stok per SKU per batch.
// Alokasi selalu FIFO by received_at (stok paling tua keluar duluan).
// Ledger in-memory jadi otoritatif (asumsi single-writer per store);
// DB menyusul lewat BatchStore sebagai write-behind.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
)

var ErrReservationClosed = errors.New("ledger: reservation already committed or released")

type InsufficientStockError struct {
	SKU       string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku=%s: requested=%d available=%d",
		e.SKU, e.Requested, e.Available)
}

type Batch struct {
	SKU           string
	BatchID       string
	OnHand        int64 // quantity_on_hand, tidak pernah negatif
	Reserved      int64 // klaim aktif yang belum di-commit; OnHand >= Reserved
	UnitCostCents int64
	ReceivedAt    time.Time
}

type Allocation struct {
	BatchID string
	Qty     int64
}

type resState int

const (
	resPending resState = iota
	resCommitted
	resReleased
)

// Reservation = klaim sementara; wajib berakhir di Commit atau Release.
type Reservation struct {
	ID          string
	SKU         string
	Qty         int64
	Allocations []Allocation
	state       resState
}

func (r *Reservation) Committed() bool { return r.state == resCommitted }
func (r *Reservation) Released() bool  { return r.state == resReleased }

type skuStock struct {
	mu      sync.Mutex
	batches []*Batch // urut ReceivedAt naik; record tidak pernah di-reorder
}

// BatchStore persistence di belakang ledger (pgx di repo.go).
type BatchStore interface {
	UpdateOnHand(ctx context.Context, sku, batchID string, onHand int64) error
	InsertBatch(ctx context.Context, b Batch) error
}

type Ledger struct {
	mu      sync.RWMutex
	skus    map[string]*skuStock
	store   BatchStore // boleh nil (test / in-memory saja)
	emitter events.Emitter
}

func New(store BatchStore, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Ledger{skus: make(map[string]*skuStock), store: store, emitter: emitter}
}

// Warm load dari DB saat startup. Urutkan sekali di sini; selanjutnya
// Receive menjaga urutan.
func (l *Ledger) Load(batches []Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range batches {
		b := batches[i]
		st := l.skus[b.SKU]
		if st == nil {
			st = &skuStock{}
			l.skus[b.SKU] = st
		}
		st.batches = append(st.batches, &b)
	}
	for _, st := range l.skus {
		sort.SliceStable(st.batches, func(i, j int) bool {
			return st.batches[i].ReceivedAt.Before(st.batches[j].ReceivedAt)
		})
	}
}

// Receive menambah batch baru (receiving stok). Batch lama tidak pernah
// dihapus, cuma habis ke nol.
func (l *Ledger) Receive(ctx context.Context, b Batch) error {
	if b.OnHand < 0 || b.UnitCostCents < 0 {
		return fmt.Errorf("ledger: invalid batch for sku=%s", b.SKU)
	}
	if b.BatchID == "" {
		b.BatchID = uuid.NewString()
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = time.Now().UTC()
	}
	l.mu.Lock()
	st := l.skus[b.SKU]
	if st == nil {
		st = &skuStock{}
		l.skus[b.SKU] = st
	}
	l.mu.Unlock()

	st.mu.Lock()
	// Umumnya append; kalau received_at mundur, sisip di posisi FIFO-nya.
	pos := len(st.batches)
	for pos > 0 && b.ReceivedAt.Before(st.batches[pos-1].ReceivedAt) {
		pos--
	}
	nb := b
	st.batches = append(st.batches, nil)
	copy(st.batches[pos+1:], st.batches[pos:])
	st.batches[pos] = &nb
	st.mu.Unlock()

	if l.store != nil {
		if err := l.store.InsertBatch(ctx, b); err != nil {
			log.Printf("ledger: persist batch %s/%s: %v", b.SKU, b.BatchID, err)
		}
	}
	l.emitter.Emit(events.Event{
		Type:          events.EventStockReceived,
		CorrelationID: b.SKU,
		Payload: events.StockReceivedPayload{
			SKU: b.SKU, BatchID: b.BatchID, Qty: b.OnHand, UnitCostCents: b.UnitCostCents,
		},
	})
	return nil
}

// Reserve klaim qty untuk satu SKU, alokasi FIFO lintas batch, atomik:
// kurang sedikit saja -> gagal total tanpa alokasi parsial. Mutex per
// SKU menjamin dua reserve bersamaan tidak pernah melebihi stok awal.
func (l *Ledger) Reserve(sku string, qty int64) (*Reservation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("ledger: invalid qty %d for sku=%s", qty, sku)
	}
	l.mu.RLock()
	st := l.skus[sku]
	l.mu.RUnlock()
	if st == nil {
		return nil, &InsufficientStockError{SKU: sku, Requested: qty, Available: 0}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Hitung dulu, mutasi belakangan: gagal = tidak ada yg berubah.
	var (
		allocs    []Allocation
		remaining = qty
		available int64
	)
	for _, b := range st.batches {
		avail := b.OnHand - b.Reserved
		available += avail
		if remaining == 0 || avail == 0 {
			continue
		}
		take := avail
		if take > remaining {
			take = remaining
		}
		allocs = append(allocs, Allocation{BatchID: b.BatchID, Qty: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, &InsufficientStockError{SKU: sku, Requested: qty, Available: available}
	}

	byID := l.indexLocked(st)
	for _, a := range allocs {
		byID[a.BatchID].Reserved += a.Qty
	}
	return &Reservation{
		ID:          uuid.NewString(),
		SKU:         sku,
		Qty:         qty,
		Allocations: allocs,
	}, nil
}

// Commit menurunkan on_hand permanen sesuai alokasi. Commit kedua kali
// (atau setelah Release) = pelanggaran kontrak, bukan di-skip diam-diam.
func (l *Ledger) Commit(ctx context.Context, res *Reservation) error {
	st := l.mustSKU(res.SKU)
	st.mu.Lock()
	defer st.mu.Unlock()
	if res.state != resPending {
		return ErrReservationClosed
	}
	byID := l.indexLocked(st)
	for _, a := range res.Allocations {
		b := byID[a.BatchID]
		b.OnHand -= a.Qty
		b.Reserved -= a.Qty
		if l.store != nil {
			if err := l.store.UpdateOnHand(ctx, b.SKU, b.BatchID, b.OnHand); err != nil {
				log.Printf("ledger: persist on_hand %s/%s: %v", b.SKU, b.BatchID, err)
			}
		}
	}
	res.state = resCommitted
	l.emitter.Emit(events.Event{
		Type:          events.EventReservationCommitted,
		CorrelationID: res.ID,
		Payload:       reservationPayload(res),
	})
	return nil
}

// Release mengembalikan klaim ke posisi batch asalnya (tidak di-reorder).
// Idempotent: reservation yang sudah tutup tidak berefek.
func (l *Ledger) Release(res *Reservation) {
	st := l.mustSKU(res.SKU)
	st.mu.Lock()
	if res.state != resPending {
		st.mu.Unlock()
		return
	}
	byID := l.indexLocked(st)
	for _, a := range res.Allocations {
		byID[a.BatchID].Reserved -= a.Qty
	}
	res.state = resReleased
	st.mu.Unlock()

	l.emitter.Emit(events.Event{
		Type:          events.EventReservationReleased,
		CorrelationID: res.ID,
		Payload:       reservationPayload(res),
	})
}

// OnHand = total quantity_on_hand lintas batch.
func (l *Ledger) OnHand(sku string) int64 {
	st := l.lookup(sku)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var n int64
	for _, b := range st.batches {
		n += b.OnHand
	}
	return n
}

// Available = on_hand dikurangi klaim aktif.
func (l *Ledger) Available(sku string) int64 {
	st := l.lookup(sku)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var n int64
	for _, b := range st.batches {
		n += b.OnHand - b.Reserved
	}
	return n
}

// WeightedAvgCostCents dihitung saat dibaca, bukan disimpan:
// sum(on_hand*unit_cost)/sum(on_hand), dibulatkan ke cent terdekat.
func (l *Ledger) WeightedAvgCostCents(sku string) int64 {
	st := l.lookup(sku)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var qty, value int64
	for _, b := range st.batches {
		qty += b.OnHand
		value += b.OnHand * b.UnitCostCents
	}
	if qty == 0 {
		return 0
	}
	return (value + qty/2) / qty
}

// StockView snapshot untuk endpoint inventory.
type StockView struct {
	SKU          string  `json:"sku"`
	OnHand       int64   `json:"on_hand"`
	Reserved     int64   `json:"reserved"`
	AvgCostCents int64   `json:"avg_cost_cents"`
	Batches      []Batch `json:"batches"`
}

func (l *Ledger) View(sku string) StockView {
	v := StockView{SKU: sku}
	st := l.lookup(sku)
	if st == nil {
		return v
	}
	st.mu.Lock()
	var qty, value int64
	for _, b := range st.batches {
		v.OnHand += b.OnHand
		v.Reserved += b.Reserved
		qty += b.OnHand
		value += b.OnHand * b.UnitCostCents
		v.Batches = append(v.Batches, *b)
	}
	st.mu.Unlock()
	if qty > 0 {
		v.AvgCostCents = (value + qty/2) / qty
	}
	return v
}

func (l *Ledger) lookup(sku string) *skuStock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skus[sku]
}

// mustSKU: reservation selalu dibuat lewat Reserve, jadi SKU-nya pasti ada.
func (l *Ledger) mustSKU(sku string) *skuStock {
	st := l.lookup(sku)
	if st == nil {
		panic("ledger: reservation for unknown sku " + sku)
	}
	return st
}

// indexLocked dipanggil dengan st.mu dipegang.
func (l *Ledger) indexLocked(st *skuStock) map[string]*Batch {
	byID := make(map[string]*Batch, len(st.batches))
	for _, b := range st.batches {
		byID[b.BatchID] = b
	}
	return byID
}

func reservationPayload(res *Reservation) events.ReservationPayload {
	allocs := make([]events.BatchAllocation, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		allocs = append(allocs, events.BatchAllocation{BatchID: a.BatchID, Qty: a.Qty})
	}
	return events.ReservationPayload{
		ReservationID: res.ID, SKU: res.SKU, Qty: res.Qty, Allocations: allocs,
	}
}
