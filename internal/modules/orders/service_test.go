package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
)

type memWriter struct{ saved []Order }

func (m *memWriter) Insert(_ context.Context, o *Order) error {
	m.saved = append(m.saved, *o)
	return nil
}

type planMap map[string]catalog.Plan

func (p planMap) GetBySlug(_ context.Context, s string) (catalog.Plan, error) {
	pl, ok := p[s]
	if !ok {
		return catalog.Plan{}, catalog.ErrPlanNotFound
	}
	return pl, nil
}

func strPtr(s string) *string { return &s }

func testPlans() planMap {
	return planMap{
		"eu-10gb": {Slug: "eu-10gb", Name: "Europe 10GB", Region: "EU", DurationDays: 30, DataMB: 10240, PriceCents: 1900, Currency: "EUR", ProviderPlanID: strPtr("prov-eu-10")},
		"jp-5gb":  {Slug: "jp-5gb", Name: "Japan 5GB", Region: "JP", DurationDays: 15, DataMB: 5120, PriceCents: 1200, Currency: "EUR", ProviderPlanID: strPtr("prov-jp-5")},
		"us-3gb":  {Slug: "us-3gb", Name: "USA 3GB", Region: "US", DurationDays: 7, DataMB: 3072, PriceCents: 900, Currency: "USD"},
	}
}

func TestService_Create_SnapshotsAndTotals(t *testing.T) {
	w := &memWriter{}
	svc := NewService(w, testPlans())

	o, err := svc.Create(context.Background(), CreateInput{
		Email:         " Buyer@Example.com ",
		Lines:         []Line{{Slug: "eu-10gb", Quantity: 2}, {Slug: "JP 5GB", Quantity: 1}},
		DiscountCents: 500,
	})
	require.NoError(t, err)
	require.Len(t, w.saved, 1)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "buyer@example.com", o.Email)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, 1900*2+1200, o.SubtotalCents)
	assert.Equal(t, 500, o.DiscountCents)
	assert.Equal(t, o.SubtotalCents-500, o.TotalCents)

	require.Len(t, o.Items, 3)
	sum := 0
	for i, it := range o.Items {
		assert.Equal(t, i, it.Position)
		assert.Equal(t, 1, it.Quantity)
		assert.Equal(t, o.ID, it.OrderID)
		assert.Equal(t, it.UnitPriceCents*it.Quantity, it.LineTotalCents)
		assert.Nil(t, it.ActivationCode)
		sum += it.LineTotalCents
	}
	assert.Equal(t, o.SubtotalCents, sum)
	assert.Equal(t, "Japan 5GB", o.Items[2].ProductName)
}

func TestService_Create_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	plans := testPlans()
	w := &memWriter{}
	svc := NewService(w, plans)

	o, err := svc.Create(context.Background(), CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "eu-10gb", Quantity: 1}}})
	require.NoError(t, err)

	p := plans["eu-10gb"]
	p.PriceCents = 9900
	p.Name = "Europe 10GB (new)"
	plans["eu-10gb"] = p
	delete(plans, "jp-5gb")

	saved := w.saved[0]
	assert.Equal(t, 1900, saved.Items[0].UnitPriceCents)
	assert.Equal(t, "Europe 10GB", saved.Items[0].ProductName)
	assert.Equal(t, 1900, o.TotalCents)
}

func TestService_Create_DiscountClamped(t *testing.T) {
	svc := NewService(&memWriter{}, testPlans())

	o, err := svc.Create(context.Background(), CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "jp-5gb", Quantity: 1}}, DiscountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1200, o.DiscountCents)
	assert.Equal(t, 0, o.TotalCents)

	o, err = svc.Create(context.Background(), CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "jp-5gb", Quantity: 1}}, DiscountCents: -10})
	require.NoError(t, err)
	assert.Equal(t, 0, o.DiscountCents)
	assert.Equal(t, 1200, o.TotalCents)
}

func TestService_Create_Rejects(t *testing.T) {
	svc := NewService(&memWriter{}, testPlans())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Email: "not-an-email", Lines: []Line{{Slug: "eu-10gb", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.co"})
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "eu-10gb", Quantity: 0}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "mars-1gb", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrProductUnavailable)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.co", Lines: []Line{{Slug: "eu-10gb", Quantity: 1}, {Slug: "us-3gb", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.co", Lines: []Line{
		{Slug: "eu-10gb", Quantity: 10}, {Slug: "jp-5gb", Quantity: 10}, {Slug: "eu-10gb", Quantity: 1},
	}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())
}

func TestOrder_Provisioning(t *testing.T) {
	o := Order{Items: []OrderItem{
		{ID: "i1", ActivationCode: strPtr("LPA:1$smdp.example$AAA"), ICCID: strPtr("8901")},
		{ID: "i2"},
	}}
	got := o.Provisioning()
	require.Len(t, got, 1)
	assert.Equal(t, "i1", got[0].ItemID)
	assert.Equal(t, "8901", got[0].Result.ICCID)
	assert.Equal(t, "", got[0].Result.ManualCode)
}
