package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/example/payhero/internal/metrics"
	"github.com/example/payhero/internal/models"
	"github.com/example/payhero/internal/services"
	"github.com/example/payhero/internal/store"
)

const defaultBatchSize = 100

// StatusChecker asks the provider what happened to a payment.
type StatusChecker interface {
	TransactionStatus(ctx context.Context, reference string) (*services.GatewayResponse, error)
}

// ResultApplier moves an intent according to a provider result.
type ResultApplier interface {
	Apply(ctx context.Context, result services.ProviderResult) (services.CallbackOutcome, error)
}

type Options struct {
	Interval    time.Duration
	OlderThan   time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

// Report summarizes one sweep.
type Report struct {
	Scanned     int `json:"scanned"`
	Credited    int `json:"credited"`
	Recorded    int `json:"recorded"`
	AlreadyPaid int `json:"already_paid"`
	Expired     int `json:"expired"`
	Pending     int `json:"pending"`
	Failed      int `json:"failed"`
}

// ReconciliationWorker resolves intents whose callback never arrived by
// polling the provider for their status.
type ReconciliationWorker struct {
	store   store.Store
	gateway StatusChecker
	applier ResultApplier
	opts    Options
	now     func() time.Time

	mu     sync.Mutex
	cursor int
}

func NewReconciliationWorker(st store.Store, gateway StatusChecker, applier ResultApplier, opts Options) *ReconciliationWorker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &ReconciliationWorker{
		store:   st,
		gateway: gateway,
		applier: applier,
		opts:    opts,
		now:     time.Now,
	}
}

// Run sweeps every Interval until ctx is done.
func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.opts.Interval)
	defer ticker.Stop()

	log.Infow("[Reconcile] worker started", "interval", rw.opts.Interval.String(), "older_than", rw.opts.OlderThan.String())

	for {
		select {
		case <-ctx.Done():
			log.Info("[Reconcile] worker stopped")
			return
		case <-ticker.C:
			report, err := rw.RunOnce(ctx)
			if err != nil {
				log.Errorw("[Reconcile] sweep failed", "error", err)
				continue
			}
			if report.Scanned > 0 {
				log.Infow("[Reconcile] sweep finished",
					"scanned", report.Scanned,
					"credited", report.Credited,
					"recorded", report.Recorded,
					"expired", report.Expired,
					"pending", report.Pending,
					"failed", report.Failed,
				)
			}
		}
	}
}

// RunOnce checks one batch of stale pending intents. Consecutive sweeps walk
// the stale set from oldest to newest and wrap around, so intents that stay
// pending cannot hide the ones behind them. A failure on one intent does not
// stop the others; it is retried on a later pass.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (Report, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	var report Report

	now := rw.now()
	stale, err := rw.nextBatch(ctx, now)
	if err != nil {
		return report, err
	}

	stillPending := 0
	defer func() {
		if len(stale) < rw.opts.BatchSize {
			rw.cursor = 0
		} else {
			rw.cursor += stillPending
		}
	}()

	for _, intent := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		result := rw.reconcile(ctx, intent, now)
		metrics.Reconciled.WithLabelValues(result).Inc()

		switch result {
		case "credited":
			report.Credited++
		case "recorded":
			report.Recorded++
		case "already_paid":
			report.AlreadyPaid++
		case "expired":
			report.Expired++
		case "pending":
			report.Pending++
			stillPending++
		default:
			report.Failed++
			stillPending++
		}
	}
	return report, nil
}

func (rw *ReconciliationWorker) nextBatch(ctx context.Context, now time.Time) ([]models.PaymentIntent, error) {
	filter := store.IntentFilter{
		Status:        models.PaymentStatusPending,
		CreatedBefore: now.Add(-rw.opts.OlderThan),
		OldestFirst:   true,
		Offset:        rw.cursor,
		Limit:         rw.opts.BatchSize,
	}
	stale, _, err := rw.store.ListIntents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 && rw.cursor > 0 {
		rw.cursor = 0
		filter.Offset = 0
		stale, _, err = rw.store.ListIntents(ctx, filter)
	}
	return stale, err
}

func (rw *ReconciliationWorker) reconcile(ctx context.Context, intent models.PaymentIntent, now time.Time) string {
	ref := intent.AccountReference
	lookup := ref
	if intent.ProviderRequestID != nil && *intent.ProviderRequestID != "" {
		lookup = *intent.ProviderRequestID
	}
	age := now.Sub(intent.CreatedAt)

	overdue := rw.opts.ExpireAfter > 0 && age >= rw.opts.ExpireAfter

	resp, err := rw.gateway.TransactionStatus(ctx, lookup)
	if errors.Is(err, services.ErrTransactionUnknown) {
		if overdue {
			return rw.expire(ctx, ref, now, "no provider record")
		}
		return "pending"
	}
	if err != nil {
		log.Warnw("[Reconcile] status check failed", "account_reference", ref, "error", err)
		return "failed"
	}

	result := services.ParseTransactionStatus(ref, resp)
	if services.IsInconclusiveStatus(result.Status) {
		if overdue {
			return rw.expire(ctx, ref, now, "provider status stayed "+result.Status)
		}
		return "pending"
	}

	outcome, err := rw.applier.Apply(ctx, result)
	if err != nil {
		log.Errorw("[Reconcile] failed to apply provider status", "account_reference", ref, "status", result.Status, "error", err)
		return "failed"
	}
	log.Infow("[Reconcile] intent resolved", "account_reference", ref, "status", result.Status, "outcome", outcome)

	switch outcome {
	case services.OutcomeCredited:
		return "credited"
	case services.OutcomeStatusRecorded:
		return "recorded"
	}
	return "already_paid"
}

func (rw *ReconciliationWorker) expire(ctx context.Context, ref string, now time.Time, reason string) string {
	applied, err := rw.store.UpdateIntent(ctx, ref, store.IntentPatch{
		Status:    models.PaymentStatusExpired,
		UpdatedAt: now,
		OnlyFrom:  []models.PaymentStatus{models.PaymentStatusPending},
	})
	if err != nil {
		log.Errorw("[Reconcile] failed to expire intent", "account_reference", ref, "error", err)
		return "failed"
	}
	if !applied {
		return "pending"
	}
	log.Infow("[Reconcile] intent expired", "account_reference", ref, "reason", reason)
	return "expired"
}
