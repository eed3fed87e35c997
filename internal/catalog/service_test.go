package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/internal/pubsub"
	"offerdex/internal/pubsub/memory"
	"offerdex/internal/registry"
	"offerdex/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPubkey(seed byte) model.ProviderPubkey {
	var pk model.ProviderPubkey
	for i := range pk {
		pk[i] = seed
	}
	return pk
}

func validOffering(key model.OfferingKey) *model.Offering {
	return &model.Offering{
		Key:               key,
		OfferName:         "Budget VPS",
		Description:       "Small virtual server for development workloads",
		Currency:          model.CurrencyEUR,
		MonthlyPrice:      10,
		Visibility:        model.VisibilityVisible,
		ProductType:       model.ProductVPS,
		Virtualization:    model.VirtKVM,
		BillingInterval:   model.BillingMonthly,
		Stock:             model.StockInStock,
		ProcessorCores:    model.Ptr[uint32](4),
		MemoryAmount:      model.Ptr("16 GB"),
		SSDAmount:         1,
		TotalSSDCapacity:  model.Ptr("512 GB"),
		DatacenterCountry: "DE",
		DatacenterCity:    "Frankfurt",
	}
}

type fixture struct {
	svc    LocalService
	reg    *registry.Registry
	bus    *memory.Bus
	events <-chan pubsub.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New(registry.DefaultConfig())
	bus := memory.New()

	consumer, err := bus.NewConsumer(pubsub.ConsumerOptions{
		FilterSubject: "offerdex.catalog.>",
		BufferSize:    32,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := consumer.Subscribe(ctx)
	require.NoError(t, err)

	svc := NewService(DefaultConfig(), reg, bus, testLogger())
	require.NoError(t, svc.Start(ctx))

	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		require.NoError(t, svc.Stop(stopCtx))
		cancel()
		bus.Close()
	})

	return &fixture{svc: svc, reg: reg, bus: bus, events: events}
}

func (f *fixture) nextEvent(t *testing.T) model.CatalogEvent {
	t.Helper()
	select {
	case msg := <-f.events:
		var ev model.CatalogEvent
		require.NoError(t, json.Unmarshal(msg.Data(), &ev))
		require.NoError(t, msg.Ack())
		return ev
	case <-time.After(time.Second):
		t.Fatal("no catalog event arrived")
		return model.CatalogEvent{}
	}
}

func (f *fixture) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.events:
		t.Fatalf("unexpected event on %s", msg.Subject())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServicePublishEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	meta, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), meta.Revision)

	ev := f.nextEvent(t)
	assert.Equal(t, model.EventPublished, ev.Type)
	assert.Equal(t, provider, ev.Provider)
	assert.Equal(t, model.OfferingKey("vm-1"), ev.Key)
	require.NotNil(t, ev.Offering)
	assert.Equal(t, "Budget VPS", ev.Offering.OfferName)
}

func TestServicePublishIdenticalIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	f.nextEvent(t)

	meta, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), meta.Revision, "replay must not bump the revision")
	f.expectNoEvent(t)
}

func TestServiceUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, err := f.svc.UpdateOffering(ctx, provider, "vm-1", validOffering("vm-1"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	f.nextEvent(t)

	changed := validOffering("vm-1")
	changed.MonthlyPrice = 12
	meta, err := f.svc.UpdateOffering(ctx, provider, "vm-1", changed)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.Revision)
	assert.Equal(t, model.EventUpdated, f.nextEvent(t).Type)

	mismatched := validOffering("vm-2")
	_, err = f.svc.UpdateOffering(ctx, provider, "vm-1", mismatched)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestServiceUpdateFillsEmptyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	f.nextEvent(t)

	payload := validOffering("vm-1")
	payload.Key = ""
	payload.MonthlyPrice = 15
	meta, err := f.svc.UpdateOffering(ctx, provider, "vm-1", payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.Revision)
	assert.Empty(t, payload.Key, "caller's record must stay untouched")
}

func TestServiceWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	removed, err := f.svc.WithdrawOffering(ctx, provider, "vm-1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.svc.WithdrawOffering(ctx, model.ProviderPubkey{}, "vm-1")
	assert.ErrorIs(t, err, model.ErrInvalidIdentity)

	_, err = f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)
	f.nextEvent(t)

	removed, err = f.svc.WithdrawOffering(ctx, provider, "vm-1")
	require.NoError(t, err)
	assert.True(t, removed)

	ev := f.nextEvent(t)
	assert.Equal(t, model.EventWithdrawn, ev.Type)
	assert.Nil(t, ev.Offering)
}

func TestServiceWithdrawProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	for _, key := range []model.OfferingKey{"vm-1", "vm-2", "vm-3"} {
		_, err := f.svc.PublishOffering(ctx, provider, validOffering(key))
		require.NoError(t, err)
		f.nextEvent(t)
	}

	n, err := f.svc.WithdrawProvider(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for i := 0; i < 3; i++ {
		assert.Equal(t, model.EventWithdrawn, f.nextEvent(t).Type)
	}

	n, err = f.svc.WithdrawProvider(ctx, provider)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, _, err := f.svc.GetOffering(ctx, provider, "vm-1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.ListProviderOfferings(ctx, provider)
	assert.ErrorIs(t, err, model.ErrProviderNotFound)

	_, err = f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)

	o, meta, err := f.svc.GetOffering(ctx, provider, "vm-1")
	require.NoError(t, err)
	assert.Equal(t, "Budget VPS", o.OfferName)
	assert.Equal(t, uint64(1), meta.Revision)

	offerings, err := f.svc.ListProviderOfferings(ctx, provider)
	require.NoError(t, err)
	assert.Len(t, offerings, 1)
}

func TestServiceRegisterCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	applied, err := f.svc.RegisterCatalog(ctx, provider, []*model.Offering{
		validOffering("vm-1"),
		validOffering("vm-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, ApplyResult{Published: 2}, applied)

	// Same catalog again: nothing changes, nothing is emitted.
	f.nextEvent(t)
	f.nextEvent(t)
	applied, err = f.svc.RegisterCatalog(ctx, provider, []*model.Offering{
		validOffering("vm-1"),
		validOffering("vm-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, ApplyResult{}, applied)
	f.expectNoEvent(t)

	// Drop vm-1, change vm-2, add vm-3.
	changed := validOffering("vm-2")
	changed.MonthlyPrice = 99
	applied, err = f.svc.RegisterCatalog(ctx, provider, []*model.Offering{
		changed,
		validOffering("vm-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, ApplyResult{Published: 1, Updated: 1, Withdrawn: 1}, applied)
}

func TestServiceImportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	var buf bytes.Buffer
	require.NoError(t, registry.WriteCatalogCSV(&buf, []*model.Offering{
		validOffering("vm-1"),
		validOffering("vm-2"),
	}))

	res, err := f.svc.ImportCSV(ctx, provider, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, res.Published)
	assert.Empty(t, res.Issues)
	assert.Equal(t, 2, f.reg.Len())
}

func TestServiceImportCSVPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	var buf bytes.Buffer
	bad := validOffering("vm-bad")
	bad.Currency = model.CurrencyUSD
	require.NoError(t, registry.WriteCatalogCSV(&buf, []*model.Offering{
		validOffering("vm-1"),
		bad,
	}))
	csvText := strings.Replace(buf.String(), "USD", "DOGE", 1)

	res, err := f.svc.ImportCSV(ctx, provider, strings.NewReader(csvText))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 2, res.Issues[0].Row)
	assert.Equal(t, 1, f.reg.Len())
}

func TestServiceImportCSVAllRowsBad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-keep"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, registry.WriteCatalogCSV(&buf, []*model.Offering{validOffering("vm-1")}))
	csvText := strings.Replace(buf.String(), "EUR", "DOGE", 1)

	_, err = f.svc.ImportCSV(ctx, provider, strings.NewReader(csvText))
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 1, f.reg.Len(), "a rejected import must not touch the catalog")
}

func TestServiceImportCSVHeaderOnlyClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	provider := testPubkey(1)

	_, err := f.svc.PublishOffering(ctx, provider, validOffering("vm-1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, registry.WriteCatalogCSV(&buf, nil))

	res, err := f.svc.ImportCSV(ctx, provider, &buf)
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 1, res.Withdrawn)
	assert.Zero(t, f.reg.Len())
}

func TestServiceExportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testPubkey(1)
	bob := testPubkey(2)

	_, err := f.svc.PublishOffering(ctx, alice, validOffering("vm-a"))
	require.NoError(t, err)
	_, err = f.svc.PublishOffering(ctx, bob, validOffering("vm-b"))
	require.NoError(t, err)

	var scoped bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, &alice, &scoped))
	assert.Contains(t, scoped.String(), "vm-a")
	assert.NotContains(t, scoped.String(), "vm-b")

	var all bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, nil, &all))
	assert.Contains(t, all.String(), "vm-a")
	assert.Contains(t, all.String(), "vm-b")

	unknown := testPubkey(9)
	err = f.svc.ExportCSV(ctx, &unknown, &bytes.Buffer{})
	assert.ErrorIs(t, err, model.ErrProviderNotFound)
}

func TestServiceStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PublishOffering(ctx, testPubkey(1), validOffering("vm-1"))
	require.NoError(t, err)
	f.nextEvent(t)

	require.Eventually(t, func() bool {
		stats, err := f.svc.Stats(ctx)
		return err == nil && stats.EventsPublished == 1
	}, time.Second, 10*time.Millisecond)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Offerings)
	assert.Equal(t, 1, stats.Providers)
	assert.Zero(t, stats.EventsDropped)
}

func TestServiceWithoutBus(t *testing.T) {
	reg := registry.New(registry.DefaultConfig())
	svc := NewService(DefaultConfig(), reg, nil, testLogger())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	_, err := svc.PublishOffering(ctx, testPubkey(1), validOffering("vm-1"))
	require.NoError(t, err)

	removed, err := svc.WithdrawOffering(ctx, testPubkey(1), "vm-1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestServiceStartTwice(t *testing.T) {
	reg := registry.New(registry.DefaultConfig())
	svc := NewService(DefaultConfig(), reg, nil, testLogger())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	assert.Error(t, svc.Start(ctx))
}
