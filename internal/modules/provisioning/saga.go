package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/catalog"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/esim"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/notify"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/orders"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
	"github.com/thespeedingatom/soviario-app-sub000/internal/telemetry"
)

type OrderStore interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
	MarkProcessing(ctx context.Context, id, paymentIntentID string) (bool, error)
	ReclaimStale(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	RecordProvisioning(ctx context.Context, id string, results []orders.ItemProvisioning) error
	MarkFailed(ctx context.Context, id, reason string, partial []orders.ItemProvisioning) (bool, error)
}

type PlanResolver interface {
	Resolve(ctx context.Context, slug string) (catalog.PlanRef, error)
}

// Provisioner issues one eSIM. The order item id is passed as the
// idempotency key so a repeated call returns the eSIM already issued.
type Provisioner interface {
	Provision(ctx context.Context, providerPlanID, idempotencyKey string) (esim.Credentials, error)
}

type Notifier interface {
	SendActivation(ctx context.Context, a notify.Activation) error
}

// Archiver stores diagnostics for a failed run, including the eSIMs issued
// before it failed. Optional.
type Archiver interface {
	ArchiveFailure(ctx context.Context, orderID string, cause error, issued []esim.Issued) (string, error)
}

// DefaultStaleAfter is how long a processing claim may go untouched before
// a redelivery resumes the order. It is well above the provider retry budget.
const DefaultStaleAfter = 15 * time.Minute

type State string

const (
	StateAwaitingPayment State = "awaiting_payment"
	StateProvisioning    State = "provisioning"
	StateNotifying       State = "notifying"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Result describes where a single run of the saga ended.
type Result struct {
	OrderID    string
	State      State
	Outcome    Outcome
	Reason     string
	NotifyErr  error
	ArchiveKey string
}

const (
	stepLoad      = "load_order"
	stepStart     = "mark_processing"
	stepReclaim   = "reclaim_stale"
	stepResolve   = "resolve_plan"
	stepProvision = "provision"
	stepRecord    = "record_provisioning"
	stepNotify    = "notify"
	stepFail      = "mark_failed"
)

type Orchestrator struct {
	store       OrderStore
	plans       PlanResolver
	provisioner Provisioner
	notifier    Notifier
	archiver    Archiver
	logger      *slog.Logger
	tracer      trace.Tracer
	staleAfter  time.Duration
	now         func() time.Time
}

type Deps struct {
	Store       OrderStore
	Plans       PlanResolver
	Provisioner Provisioner
	Notifier    Notifier
	Archiver    Archiver
	Logger      *slog.Logger

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
	Now        func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	staleAfter := d.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:       d.Store,
		plans:       d.Plans,
		provisioner: d.Provisioner,
		notifier:    d.Notifier,
		archiver:    d.Archiver,
		logger:      logger,
		tracer:      telemetry.Tracer("provisioning"),
		staleAfter:  staleAfter,
		now:         now,
	}
}

// Handle runs the saga for one payment confirmation. The returned error is
// reserved for persistence failures that leave the outcome unknown; business
// failures are reported through Result and persisted on the order.
func (o *Orchestrator) Handle(ctx context.Context, c payments.Confirmation) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "saga.handle", trace.WithAttributes(
		attribute.String("order.id", c.OrderID),
		attribute.String("payment.event_id", c.EventID),
	))
	defer span.End()

	res, err := o.run(ctx, c)
	span.SetAttributes(
		attribute.String("saga.state", string(res.State)),
		attribute.String("saga.outcome", string(res.Outcome)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, c payments.Confirmation) (Result, error) {
	res := Result{OrderID: c.OrderID, State: StateAwaitingPayment}
	log := o.logger.With(slog.String("order_id", c.OrderID), slog.String("event_id", c.EventID))

	if !c.Paid() {
		log.InfoContext(ctx, "saga_skipped", slog.String("step", stepLoad), slog.String("payment_status", c.PaymentStatus))
		return skip(res, "payment not settled"), nil
	}

	order, err := traced(ctx, o.tracer, stepLoad, func(ctx context.Context) (orders.Order, error) {
		return o.store.GetWithItems(ctx, c.OrderID)
	})
	if errors.Is(err, orders.ErrOrderNotFound) {
		log.WarnContext(ctx, "saga_skipped", slog.String("step", stepLoad), slog.String("error", err.Error()))
		return skip(res, "order not found"), nil
	}
	if err != nil {
		log.ErrorContext(ctx, "saga_error", slog.String("step", stepLoad), slog.String("error", err.Error()))
		return res, fmt.Errorf("load order: %w", err)
	}

	// A pending order is claimed. A processing order whose claim went stale
	// belongs to a run that died before recording its outcome; it is taken
	// over and items that already hold credentials are carried over.
	var (
		step  string
		claim func(context.Context) (bool, error)
	)
	switch {
	case order.Status == orders.StatusPending:
		step = stepStart
		claim = func(ctx context.Context) (bool, error) {
			return o.store.MarkProcessing(ctx, order.ID, c.PaymentIntentID)
		}
	case order.Status == orders.StatusProcessing && o.now().Sub(order.UpdatedAt) >= o.staleAfter:
		step = stepReclaim
		claim = func(ctx context.Context) (bool, error) {
			return o.store.ReclaimStale(ctx, order.ID, o.now().Add(-o.staleAfter))
		}
	default:
		res.State = stateFor(order.Status)
		log.InfoContext(ctx, "saga_skipped", slog.String("step", stepLoad), slog.String("status", string(order.Status)))
		return skip(res, "order is "+string(order.Status)), nil
	}

	moved, err := traced(ctx, o.tracer, step, claim)
	if err != nil {
		log.ErrorContext(ctx, "saga_error", slog.String("step", step), slog.String("error", err.Error()))
		return res, fmt.Errorf("claim order: %w", err)
	}
	if !moved {
		log.InfoContext(ctx, "saga_skipped", slog.String("step", step), slog.String("reason", "lost race"))
		return skip(res, "order already claimed"), nil
	}
	if step == stepReclaim {
		log.WarnContext(ctx, "saga_resumed", slog.String("step", step), slog.Time("claimed_at", order.UpdatedAt))
	}
	res.State = StateProvisioning

	results, step, err := o.provisionItems(ctx, order)
	if err != nil {
		return o.fail(ctx, log, res, order.ID, step, err, results)
	}

	if _, err := traced(ctx, o.tracer, stepRecord, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.store.RecordProvisioning(ctx, order.ID, results)
	}); err != nil {
		log.ErrorContext(ctx, "saga_error", slog.String("step", stepRecord), slog.String("error", err.Error()))
		failed, ferr := o.fail(ctx, log, res, order.ID, stepRecord, err, results)
		if ferr != nil {
			return failed, fmt.Errorf("record provisioning: %w", errors.Join(err, ferr))
		}
		return failed, nil
	}
	res.State = StateNotifying
	log.InfoContext(ctx, "order_provisioned", slog.String("step", stepRecord), slog.Int("esims", len(results)))

	_, nerr := traced(ctx, o.tracer, stepNotify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.notifier.SendActivation(ctx, activationFor(order, c, results))
	})
	if nerr != nil {
		res.NotifyErr = nerr
		log.WarnContext(ctx, "activation_email_failed", slog.String("step", stepNotify), slog.String("error", nerr.Error()))
	}

	res.State = StateDone
	res.Outcome = OutcomeCompleted
	return res, nil
}

// provisionItems issues one eSIM per item. Items that already hold
// credentials are carried over without calling the provider. On error the
// credentials issued so far are returned with the failing step.
func (o *Orchestrator) provisionItems(ctx context.Context, order orders.Order) ([]orders.ItemProvisioning, string, error) {
	if len(order.Items) == 0 {
		return nil, stepResolve, orders.ErrNoItems
	}

	results := make([]orders.ItemProvisioning, 0, len(order.Items))
	for _, it := range order.Items {
		if p, ok := it.Provisioning(); ok {
			results = append(results, orders.ItemProvisioning{ItemID: it.ID, Result: p})
			continue
		}

		ref, err := traced(ctx, o.tracer, stepResolve, func(ctx context.Context) (catalog.PlanRef, error) {
			return o.plans.Resolve(ctx, it.ProductSlug)
		})
		if err != nil {
			return results, stepResolve, fmt.Errorf("item %d: %w", it.Position, err)
		}

		creds, err := traced(ctx, o.tracer, stepProvision, func(ctx context.Context) (esim.Credentials, error) {
			return o.provisioner.Provision(ctx, ref.ProviderPlanID, it.ID)
		})
		if err != nil {
			return results, stepProvision, fmt.Errorf("item %d: %w", it.Position, err)
		}

		results = append(results, orders.ItemProvisioning{
			ItemID: it.ID,
			Result: orders.Provisioning{
				ESIMUID:        creds.ESIMUID,
				ICCID:          creds.ICCID,
				ActivationCode: creds.ActivationCode,
				ManualCode:     creds.ManualCode,
				SMDPAddress:    creds.SMDPAddress,
			},
		})
	}
	return results, "", nil
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, res Result, orderID, step string, cause error, partial []orders.ItemProvisioning) (Result, error) {
	attrs := []any{slog.String("step", step), slog.String("error", cause.Error())}
	var pe *esim.ProvisioningError
	if errors.As(cause, &pe) {
		attrs = append(attrs, slog.Int("upstream_status", pe.StatusCode), slog.String("upstream_body", pe.Body))
	}
	log.ErrorContext(ctx, "saga_failed", attrs...)

	if o.archiver != nil {
		key, err := o.archiver.ArchiveFailure(ctx, orderID, cause, issuedOf(partial))
		if err != nil {
			log.WarnContext(ctx, "failure_archive_error", slog.String("step", step), slog.String("error", err.Error()))
		} else {
			res.ArchiveKey = key
		}
	}

	reason := failureReason(step, cause)
	if _, err := traced(ctx, o.tracer, stepFail, func(ctx context.Context) (bool, error) {
		return o.store.MarkFailed(ctx, orderID, reason, partial)
	}); err != nil {
		log.ErrorContext(ctx, "saga_error", slog.String("step", stepFail), slog.String("error", err.Error()))
		// Nothing reached the order row. The log and the archive are the
		// only copies of what the provider issued.
		for _, p := range partial {
			log.ErrorContext(ctx, "issued_esim_unsaved",
				slog.String("item_id", p.ItemID),
				slog.String("esim_uid", p.Result.ESIMUID),
				slog.String("iccid", p.Result.ICCID),
				slog.String("activation_code", p.Result.ActivationCode),
				slog.String("archive_key", res.ArchiveKey),
			)
		}
		return res, fmt.Errorf("mark failed: %w", err)
	}

	res.State = StateFailed
	res.Outcome = OutcomeFailed
	res.Reason = reason
	return res, nil
}

// traced runs fn inside a child span named after the saga step.
func traced[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "saga."+name)
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func issuedOf(results []orders.ItemProvisioning) []esim.Issued {
	out := make([]esim.Issued, 0, len(results))
	for _, r := range results {
		out = append(out, esim.Issued{ItemID: r.ItemID, Credentials: esim.Credentials{
			ESIMUID:        r.Result.ESIMUID,
			ICCID:          r.Result.ICCID,
			ActivationCode: r.Result.ActivationCode,
			ManualCode:     r.Result.ManualCode,
			SMDPAddress:    r.Result.SMDPAddress,
		}})
	}
	return out
}

func failureReason(step string, err error) string {
	switch {
	case errors.Is(err, catalog.ErrPlanNotFound):
		return "plan not found: " + err.Error()
	case errors.Is(err, catalog.ErrPlanMappingMissing):
		return "plan has no provider mapping: " + err.Error()
	case errors.Is(err, esim.ErrInvalidProviderResponse):
		return "invalid provider response: " + err.Error()
	case errors.Is(err, esim.ErrProvisioningFailed):
		return "provisioning failed: " + err.Error()
	}
	return step + ": " + err.Error()
}

func activationFor(order orders.Order, c payments.Confirmation, results []orders.ItemProvisioning) notify.Activation {
	byID := make(map[string]orders.Provisioning, len(results))
	for _, r := range results {
		byID[r.ItemID] = r.Result
	}
	email := order.Email
	if email == "" {
		email = c.Email
	}
	a := notify.Activation{OrderID: order.ID, Email: email}
	for _, it := range order.Items {
		p, ok := byID[it.ID]
		if !ok {
			continue
		}
		a.ESIMs = append(a.ESIMs, notify.ESIM{
			PlanName:       it.ProductName,
			ActivationCode: p.ActivationCode,
			ManualCode:     p.ManualCode,
			SMDPAddress:    p.SMDPAddress,
		})
	}
	return a
}

func skip(res Result, reason string) Result {
	res.Outcome = OutcomeSkipped
	res.Reason = reason
	return res
}

func stateFor(s orders.Status) State {
	switch s {
	case orders.StatusProcessing:
		return StateProvisioning
	case orders.StatusCompleted:
		return StateDone
	case orders.StatusFailed, orders.StatusCancelled, orders.StatusRefunded:
		return StateFailed
	}
	return StateAwaitingPayment
}
