package provisioning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thespeedingatom/soviario-app-sub000/internal/mailer"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/esim"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/notify"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
)

// memStore mirrors the conditional writes of orders.Repo.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
	now    func() time.Time
}

func newMemStore(os ...orders.Order) *memStore {
	s := &memStore{orders: map[string]*orders.Order{}, now: time.Now}
	for i := range os {
		o := os[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *memStore) GetWithItems(ctx context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]orders.OrderItem(nil), o.Items...)
	return cp, nil
}

func (s *memStore) MarkProcessing(ctx context.Context, id, pi string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusProcessing
	o.PaymentIntentID = &pi
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) ReclaimStale(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.Status != orders.StatusProcessing || !o.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *memStore) write(o *orders.Order, res []orders.ItemProvisioning, strict bool) error {
	for _, r := range res {
		for i := range o.Items {
			it := &o.Items[i]
			if it.ID != r.ItemID {
				continue
			}
			if it.ActivationCode != nil {
				if strict && *it.ActivationCode != r.Result.ActivationCode {
					return orders.ErrAlreadyProvisioned
				}
				continue
			}
			code := r.Result.ActivationCode
			it.ActivationCode = &code
		}
	}
	return nil
}

func (s *memStore) RecordProvisioning(ctx context.Context, id string, res []orders.ItemProvisioning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if err := s.write(o, res, true); err != nil {
		return err
	}
	if o.Status != orders.StatusProcessing {
		return orders.ErrInvalidTransition
	}
	o.Status = orders.StatusCompleted
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id, reason string, partial []orders.ItemProvisioning) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	_ = s.write(o, partial, false)
	if o.Status != orders.StatusPending && o.Status != orders.StatusProcessing {
		return false, nil
	}
	o.Status = orders.StatusFailed
	o.FailureReason = &reason
	return true, nil
}

func (s *memStore) status(id string) orders.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

type mapPlans map[string]string

func (m mapPlans) Resolve(ctx context.Context, slug string) (catalog.PlanRef, error) {
	id, ok := m[slug]
	if !ok {
		return catalog.PlanRef{}, fmt.Errorf("resolve %q: %w", slug, catalog.ErrPlanNotFound)
	}
	return catalog.PlanRef{Slug: slug, ProviderPlanID: id}, nil
}

type fakeProvisioner struct {
	calls atomic.Int32
	fn    func(n int32, planID, key string) (esim.Credentials, error)

	mu   sync.Mutex
	keys []string
}

func (f *fakeProvisioner) Provision(ctx context.Context, planID, key string) (esim.Credentials, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return f.fn(n, planID, key)
}

func okProvisioner() *fakeProvisioner {
	return &fakeProvisioner{fn: func(n int32, _, _ string) (esim.Credentials, error) {
		return esim.Credentials{
			ESIMUID:        fmt.Sprintf("e%d", n),
			ICCID:          "8900000000000000000",
			ActivationCode: fmt.Sprintf("LPA:1$smdp.example$ABC12%d", n),
			ManualCode:     fmt.Sprintf("ABC12%d", n),
			SMDPAddress:    "smdp.example",
		}, nil
	}}
}

type fakeArchiver struct {
	keys   []string
	issued [][]esim.Issued
}

func (a *fakeArchiver) ArchiveFailure(ctx context.Context, orderID string, cause error, issued []esim.Issued) (string, error) {
	k := "provisioning-failures/" + orderID + "/1.json"
	a.keys = append(a.keys, k)
	a.issued = append(a.issued, issued)
	return k, nil
}

func order(id string, slugs ...string) orders.Order {
	o := orders.Order{ID: id, Email: "buyer@example.com", Currency: "USD", Status: orders.StatusPending}
	for i, s := range slugs {
		o.Items = append(o.Items, orders.OrderItem{
			ID: fmt.Sprintf("%s-item-%d", id, i+1), OrderID: id, Position: i + 1,
			ProductSlug: s, ProductName: "Europe 3GB / 30 days", Quantity: 1,
		})
	}
	return o
}

func paid(orderID string) payments.Confirmation {
	return payments.Confirmation{
		EventID: "evt_1", EventType: payments.EventCheckoutCompleted, OrderID: orderID,
		PaymentIntentID: "pi_1", PaymentStatus: payments.PaymentStatusPaid,
	}
}

type harness struct {
	store *memStore
	prov  *fakeProvisioner
	mail  *mailer.Mock
	arch  *fakeArchiver
	logs  *bytes.Buffer
	saga  *Orchestrator
}

func newHarness(store *memStore, prov *fakeProvisioner) *harness {
	h := &harness{store: store, prov: prov, mail: &mailer.Mock{}, arch: &fakeArchiver{}, logs: &bytes.Buffer{}}
	logger := slog.New(slog.NewJSONHandler(h.logs, nil))
	h.saga = NewOrchestrator(Deps{
		Store:       store,
		Plans:       mapPlans{"europe-3gb-30d": "42", "japan-5gb-7d": "77"},
		Provisioner: prov,
		Notifier:    notify.NewDispatcher(h.mail, notify.Options{From: "no-reply@shop.test"}, logger),
		Archiver:    h.arch,
		Logger:      logger,
	})
	return h
}

func TestHandle_HappyPath(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, orders.StatusCompleted, h.store.status("ord_1"))

	require.Equal(t, 1, h.mail.Count())
	sent := h.mail.Sent[0]
	assert.Equal(t, []string{"buyer@example.com"}, sent.To)
	assert.Contains(t, sent.TextBody, "LPA:1$smdp.example$ABC121")
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "image/png", sent.Attachments[0].ContentType)
}

func TestHandle_UpstreamUnavailable(t *testing.T) {
	prov := &fakeProvisioner{fn: func(int32, string, string) (esim.Credentials, error) {
		return esim.Credentials{}, &esim.ProvisioningError{StatusCode: 503, Body: "maintenance"}
	}}
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), prov)

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Reason, "provisioning failed")
	assert.Equal(t, orders.StatusFailed, h.store.status("ord_1"))
	assert.Equal(t, 0, h.mail.Count())
	assert.Len(t, h.arch.keys, 1)

	assert.Contains(t, h.logs.String(), `"order_id":"ord_1"`)
	assert.Contains(t, h.logs.String(), `"upstream_status":503`)
	assert.Contains(t, h.logs.String(), `"step":"provision"`)
}

func TestHandle_RedeliveryProvisionsOnce(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())
	ctx := context.Background()

	_, err := h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)

	res, err := h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, StateDone, res.State)

	assert.Equal(t, int32(1), h.prov.calls.Load())
	assert.Equal(t, 1, h.mail.Count())
}

func TestHandle_ConcurrentDeliveriesProvisionOnce(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.saga.Handle(context.Background(), paid("ord_1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.prov.calls.Load())
	assert.Equal(t, 1, h.mail.Count())
	assert.Equal(t, orders.StatusCompleted, h.store.status("ord_1"))
}

func TestHandle_MissingOrderIDMutatesNothing(t *testing.T) {
	store := newMemStore(order("ord_1", "europe-3gb-30d"))
	h := newHarness(store, okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid(""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, orders.StatusPending, store.status("ord_1"))
	assert.Equal(t, int32(0), h.prov.calls.Load())
}

func TestHandle_PlanDeleted(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "retired-plan")), okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "plan not found")
	assert.Equal(t, orders.StatusFailed, h.store.status("ord_1"))
	assert.Equal(t, int32(0), h.prov.calls.Load())
	assert.Equal(t, 0, h.mail.Count())
}

func TestHandle_EmailFailureKeepsOrderCompleted(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())
	h.mail.Err = errors.New("smtp: 421 try later")

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, StateDone, res.State)
	require.Error(t, res.NotifyErr)
	assert.Equal(t, orders.StatusCompleted, h.store.status("ord_1"))

	o, _ := h.store.GetWithItems(context.Background(), "ord_1")
	_, ok := o.Items[0].Provisioning()
	assert.True(t, ok)
}

func TestHandle_UnpaidIsSkipped(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())
	c := paid("ord_1")
	c.PaymentStatus = "unpaid"

	res, err := h.saga.Handle(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, StateAwaitingPayment, res.State)
	assert.Equal(t, orders.StatusPending, h.store.status("ord_1"))
}

func TestHandle_InFlightOrderIsSkipped(t *testing.T) {
	o := order("ord_1", "europe-3gb-30d")
	o.Status = orders.StatusProcessing
	o.UpdatedAt = time.Now().Add(-time.Minute)
	h := newHarness(newMemStore(o), okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, StateProvisioning, res.State)
	assert.Equal(t, int32(0), h.prov.calls.Load())
}

func TestHandle_MultiItemProvisionsEach(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d", "japan-5gb-7d", "europe-3gb-30d")), okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, int32(3), h.prov.calls.Load())
	require.Equal(t, 1, h.mail.Count())
	assert.Len(t, h.mail.Sent[0].Attachments, 3)
}

func TestHandle_PartialFailureKeepsIssuedCredentials(t *testing.T) {
	prov := &fakeProvisioner{fn: func(n int32, _, _ string) (esim.Credentials, error) {
		if n == 2 {
			return esim.Credentials{}, fmt.Errorf("decode: %w", esim.ErrInvalidProviderResponse)
		}
		return esim.Credentials{ActivationCode: "LPA:1$a$first"}, nil
	}}
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d", "japan-5gb-7d")), prov)

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "invalid provider response")

	o, _ := h.store.GetWithItems(context.Background(), "ord_1")
	assert.Equal(t, orders.StatusFailed, o.Status)
	p, ok := o.Items[0].Provisioning()
	require.True(t, ok)
	assert.Equal(t, "LPA:1$a$first", p.ActivationCode)
	_, ok = o.Items[1].Provisioning()
	assert.False(t, ok)
}

func TestHandle_SkipsItemsWithCredentials(t *testing.T) {
	o := order("ord_1", "europe-3gb-30d", "japan-5gb-7d")
	code := "LPA:1$a$kept"
	o.Items[0].ActivationCode = &code
	h := newHarness(newMemStore(o), okProvisioner())

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, int32(1), h.prov.calls.Load())
	assert.Contains(t, h.mail.Sent[0].TextBody, "LPA:1$a$kept")
}

type brokenStore struct{ *memStore }

func (brokenStore) GetWithItems(context.Context, string) (orders.Order, error) {
	return orders.Order{}, errors.New("connection refused")
}

func TestHandle_StoreErrorIsReturned(t *testing.T) {
	h := newHarness(newMemStore(), okProvisioner())
	h.saga.store = brokenStore{h.store}

	_, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHandle_ProvisionUsesItemIDAsIdempotencyKey(t *testing.T) {
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d", "japan-5gb-7d")), okProvisioner())

	_, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ord_1-item-1", "ord_1-item-2"}, h.prov.keys)
}

// flakyStore fails every outcome write while down is set.
type flakyStore struct {
	*memStore
	down atomic.Bool
}

func (s *flakyStore) RecordProvisioning(ctx context.Context, id string, res []orders.ItemProvisioning) error {
	if s.down.Load() {
		return errors.New("Error 1406: Data too long for column")
	}
	return s.memStore.RecordProvisioning(ctx, id, res)
}

func (s *flakyStore) MarkFailed(ctx context.Context, id, reason string, partial []orders.ItemProvisioning) (bool, error) {
	if s.down.Load() {
		return false, errors.New("Error 1406: Data too long for column")
	}
	return s.memStore.MarkFailed(ctx, id, reason, partial)
}

// keyedProvisioner answers a repeated key with the eSIM already issued.
func keyedProvisioner() (*fakeProvisioner, *atomic.Int32) {
	var issued atomic.Int32
	var byKey sync.Map
	p := &fakeProvisioner{}
	p.fn = func(_ int32, _, key string) (esim.Credentials, error) {
		if c, ok := byKey.Load(key); ok {
			return c.(esim.Credentials), nil
		}
		id := issued.Add(1)
		c := esim.Credentials{ESIMUID: fmt.Sprintf("e%d", id), ActivationCode: fmt.Sprintf("LPA:1$smdp.example$K%d", id)}
		byKey.Store(key, c)
		return c, nil
	}
	return p, &issued
}

func TestHandle_UnsavedCredentialsAreKeptAndStaleOrderResumes(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	mem := newMemStore(order("ord_1", "europe-3gb-30d"))
	mem.now = now
	store := &flakyStore{memStore: mem}
	store.down.Store(true)
	prov, issued := keyedProvisioner()

	h := newHarness(mem, prov)
	h.saga.store = store
	h.saga.now = now
	ctx := context.Background()

	// Both outcome writes fail after the provider issued the eSIM.
	_, err := h.saga.Handle(ctx, paid("ord_1"))
	require.Error(t, err)
	assert.Equal(t, orders.StatusProcessing, mem.status("ord_1"))

	require.Len(t, h.arch.issued, 1)
	require.Len(t, h.arch.issued[0], 1)
	assert.Equal(t, "ord_1-item-1", h.arch.issued[0][0].ItemID)
	assert.Equal(t, "LPA:1$smdp.example$K1", h.arch.issued[0][0].ActivationCode)
	assert.Contains(t, h.logs.String(), `"msg":"issued_esim_unsaved"`)
	assert.Contains(t, h.logs.String(), `"activation_code":"LPA:1$smdp.example$K1"`)

	// The store recovers; an early redelivery leaves the fresh claim alone.
	store.down.Store(false)
	res, err := h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, int32(1), prov.calls.Load())

	// Once the claim is stale the redelivery resumes and completes.
	clock = clock.Add(DefaultStaleAfter + time.Minute)
	res, err = h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, orders.StatusCompleted, mem.status("ord_1"))
	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, []string{"ord_1-item-1", "ord_1-item-1"}, prov.keys)
	require.Equal(t, 1, h.mail.Count())
	assert.Contains(t, h.mail.Sent[0].TextBody, "LPA:1$smdp.example$K1")
	assert.Contains(t, h.logs.String(), `"msg":"saga_resumed"`)
}

func TestHandle_StaleClaimIsResumedOnce(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := order("ord_1", "europe-3gb-30d", "japan-5gb-7d")
	o.Status = orders.StatusProcessing
	o.UpdatedAt = clock.Add(-time.Hour)
	code := "LPA:1$a$kept"
	o.Items[0].ActivationCode = &code

	store := newMemStore(o)
	store.now = func() time.Time { return clock }
	h := newHarness(store, okProvisioner())
	h.saga.now = store.now

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.saga.Handle(context.Background(), paid("ord_1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.prov.calls.Load())
	assert.Equal(t, []string{"ord_1-item-2"}, h.prov.keys)
	assert.Equal(t, orders.StatusCompleted, store.status("ord_1"))
	assert.Equal(t, 1, h.mail.Count())
}

func TestHandle_OversizedProviderValueFailsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"esim_uid":"u1","iccid":"`+strings.Repeat("8", 40)+`","activation_code":"LPA:1$smdp.example$ÄBC"}`)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d")), okProvisioner())
	h.saga.provisioner = esim.NewClient(srv.URL, "key", time.Second)

	res, err := h.saga.Handle(context.Background(), paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "invalid provider response")
	assert.Equal(t, orders.StatusFailed, h.store.status("ord_1"))
}

func TestHandle_RetryAfterPartialFailureIssuesOnlyMissing(t *testing.T) {
	prov := &fakeProvisioner{fn: func(n int32, _, key string) (esim.Credentials, error) {
		if n == 2 {
			return esim.Credentials{}, &esim.ProvisioningError{StatusCode: 422, Body: "plan paused"}
		}
		return esim.Credentials{ActivationCode: "LPA:1$a$" + key}, nil
	}}
	h := newHarness(newMemStore(order("ord_1", "europe-3gb-30d", "japan-5gb-7d")), prov)
	ctx := context.Background()

	res, err := h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)

	// support retry puts the failed order back to pending
	h.store.mu.Lock()
	h.store.orders["ord_1"].Status = orders.StatusPending
	h.store.mu.Unlock()

	res, err = h.saga.Handle(ctx, paid("ord_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"ord_1-item-1", "ord_1-item-2", "ord_1-item-2"}, prov.keys)
	require.Equal(t, 1, h.mail.Count())
	assert.Contains(t, h.mail.Sent[0].TextBody, "LPA:1$a$ord_1-item-1")
	assert.Contains(t, h.mail.Sent[0].TextBody, "LPA:1$a$ord_1-item-2")
}
