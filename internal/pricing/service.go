// Package pricing menghitung ulang total order murni dari harga katalog
// server. unit_price_snapshot dari payload client tidak pernah dipakai
// untuk settlement (hindari trust dari client).
package pricing

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
	"github.com/ariefcatur/go-checkout-engine.git/internal/catalog"
)

type Line struct {
	SKU            string `json:"sku"`
	Qty            int64  `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// OrderTotals immutable setelah dikembalikan; jangan dimutasi caller.
type OrderTotals struct {
	Currency      string   `json:"currency"`
	SubtotalCents int64    `json:"subtotal_cents"`
	DiscountCents int64    `json:"discount_cents"`
	TaxCents      int64    `json:"tax_cents"`
	ShippingCents int64    `json:"shipping_cents"`
	TotalCents    int64    `json:"total_cents"`
	Lines         []Line   `json:"lines"`
	PromoCodes    []string `json:"promo_codes,omitempty"`
}

// PromoRule dipegang server; dievaluasi urut, hasilnya di-cap ke subtotal.
type PromoRule interface {
	Code() string
	DiscountCents(lines []Line, subtotalCents int64) int64
}

// SubtotalPercentOff: potongan bps kalau subtotal tembus threshold.
type SubtotalPercentOff struct {
	PromoCode      string
	ThresholdCents int64
	BPS            int64
}

func (p SubtotalPercentOff) Code() string { return p.PromoCode }

func (p SubtotalPercentOff) DiscountCents(_ []Line, subtotal int64) int64 {
	if subtotal < p.ThresholdCents {
		return 0
	}
	return (subtotal*p.BPS + 5000) / 10000
}

// Service stateless & bebas side effect: input sama + katalog sama =
// output sama.
type Service struct {
	Catalog  catalog.PriceReader
	Rules    []PromoRule
	Currency string

	TaxBPS            int64 // pajak atas (subtotal - diskon)
	ShippingFlatCents int64
	FreeShippingCents int64 // gratis ongkir mulai nilai ini (0 = tidak ada)
}

func (s *Service) Price(ctx context.Context, sess *cart.Session) (OrderTotals, error) {
	t := OrderTotals{Currency: s.Currency}
	if t.Currency == "" {
		t.Currency = "CAD"
	}
	for _, it := range sess.Items {
		if it.Qty <= 0 {
			return OrderTotals{}, fmt.Errorf("pricing: invalid qty %d for sku=%s", it.Qty, it.SKU)
		}
		price, err := s.Catalog.CurrentPriceCents(ctx, it.SKU)
		if err != nil {
			return OrderTotals{}, err
		}
		line := Line{
			SKU:            it.SKU,
			Qty:            it.Qty,
			UnitPriceCents: price,
			LineTotalCents: price * it.Qty,
		}
		t.Lines = append(t.Lines, line)
		t.SubtotalCents += line.LineTotalCents
	}

	for _, rule := range s.Rules {
		d := rule.DiscountCents(t.Lines, t.SubtotalCents)
		if d <= 0 {
			continue
		}
		if t.DiscountCents+d > t.SubtotalCents {
			d = t.SubtotalCents - t.DiscountCents
		}
		t.DiscountCents += d
		t.PromoCodes = append(t.PromoCodes, rule.Code())
	}

	taxable := t.SubtotalCents - t.DiscountCents
	t.TaxCents = (taxable*s.TaxBPS + 5000) / 10000

	t.ShippingCents = s.ShippingFlatCents
	if s.FreeShippingCents > 0 && taxable >= s.FreeShippingCents {
		t.ShippingCents = 0
	}

	t.TotalCents = taxable + t.TaxCents + t.ShippingCents
	return t, nil
}
