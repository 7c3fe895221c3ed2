package cart

import "time"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusLocked    Status = "LOCKED"
	StatusConverted Status = "CONVERTED"
	StatusExpired   Status = "EXPIRED"
)

// ACTIVE -> CONVERTED langsung sah: fase "locked" dipegang cartlock
// in-process, status LOCKED di DB cuma dipakai kalau lock mau dipersist.
var validNext = map[Status]map[Status]bool{
	StatusActive:    {StatusLocked: true, StatusConverted: true, StatusExpired: true},
	StatusLocked:    {StatusActive: true, StatusConverted: true, StatusExpired: true},
	StatusConverted: {},
	StatusExpired:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type Item struct {
	SKU string `json:"sku"`
	Qty int64  `json:"qty"`
	// Snapshot harga saat item masuk cart; display only. Settlement
	// SELALU pakai harga katalog server (lihat pricing).
	UnitPriceSnapshotCents int64 `json:"unit_price_snapshot_cents"`
}

type Session struct {
	ID         string
	CustomerID string
	Items      []Item
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
