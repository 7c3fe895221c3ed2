package pricing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
)

type fakeCatalog map[string]int64

func (f fakeCatalog) CurrentPriceCents(_ context.Context, sku string) (int64, error) {
	p, ok := f[sku]
	if !ok {
		return 0, fmt.Errorf("catalog: unknown sku %s", sku)
	}
	return p, nil
}

func newService(rules ...PromoRule) *Service {
	return &Service{
		Catalog:           fakeCatalog{"WIDGET": 1999, "GADGET": 500},
		Rules:             rules,
		Currency:          "CAD",
		TaxBPS:            1300,
		ShippingFlatCents: 999,
		FreeShippingCents: 10000,
	}
}

func TestPriceIgnoresClientSnapshot(t *testing.T) {
	s := newService()
	sess := &cart.Session{Items: []cart.Item{
		// Client ngaku $1.00; katalog bilang $19.99.
		{SKU: "WIDGET", Qty: 3, UnitPriceSnapshotCents: 100},
	}}

	tot, err := s.Price(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(5997), tot.SubtotalCents)
	assert.Equal(t, int64(1999), tot.Lines[0].UnitPriceCents)
}

func TestPriceTaxAndShipping(t *testing.T) {
	s := newService()
	sess := &cart.Session{Items: []cart.Item{{SKU: "GADGET", Qty: 2}}}

	tot, err := s.Price(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tot.SubtotalCents)
	assert.Equal(t, int64(130), tot.TaxCents) // 13%
	assert.Equal(t, int64(999), tot.ShippingCents)
	assert.Equal(t, int64(2129), tot.TotalCents)
}

func TestPriceFreeShippingThreshold(t *testing.T) {
	s := newService()
	sess := &cart.Session{Items: []cart.Item{{SKU: "WIDGET", Qty: 6}}} // 11994

	tot, err := s.Price(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tot.ShippingCents)
}

func TestPricePromoRule(t *testing.T) {
	s := newService(SubtotalPercentOff{PromoCode: "BULK10", ThresholdCents: 5000, BPS: 1000})

	// Di bawah threshold: tidak ada diskon.
	below := &cart.Session{Items: []cart.Item{{SKU: "GADGET", Qty: 2}}}
	tot, err := s.Price(context.Background(), below)
	require.NoError(t, err)
	assert.Zero(t, tot.DiscountCents)
	assert.Empty(t, tot.PromoCodes)

	// Di atas threshold: 10% off, pajak dihitung setelah diskon.
	above := &cart.Session{Items: []cart.Item{{SKU: "WIDGET", Qty: 3}}} // 5997
	tot, err = s.Price(context.Background(), above)
	require.NoError(t, err)
	assert.Equal(t, int64(600), tot.DiscountCents) // dibulatkan
	assert.Equal(t, []string{"BULK10"}, tot.PromoCodes)
	taxable := tot.SubtotalCents - tot.DiscountCents
	assert.Equal(t, (taxable*1300+5000)/10000, tot.TaxCents)
}

func TestPriceDeterministic(t *testing.T) {
	s := newService(SubtotalPercentOff{PromoCode: "BULK10", ThresholdCents: 5000, BPS: 1000})
	sess := &cart.Session{Items: []cart.Item{
		{SKU: "WIDGET", Qty: 2},
		{SKU: "GADGET", Qty: 5},
	}}

	a, err := s.Price(context.Background(), sess)
	require.NoError(t, err)
	b, err := s.Price(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPriceUnknownSKU(t *testing.T) {
	s := newService()
	sess := &cart.Session{Items: []cart.Item{{SKU: "GHOST", Qty: 1}}}
	_, err := s.Price(context.Background(), sess)
	require.Error(t, err)
}

func TestPriceInvalidQty(t *testing.T) {
	s := newService()
	sess := &cart.Session{Items: []cart.Item{{SKU: "WIDGET", Qty: 0}}}
	_, err := s.Price(context.Background(), sess)
	require.Error(t, err)
}
