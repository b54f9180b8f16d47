package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/scopewise/internal/calculator"
	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/metrics"
	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
)

// EngineOptions tunes the Engine. Zero values select the defaults.
type EngineOptions struct {
	Calculator    calculator.Options
	Timeout       time.Duration
	PlanCacheSize int
	Workers       int
}

const (
	defaultTimeout       = 5 * time.Second
	defaultPlanCacheSize = 128
	defaultWorkers       = 4
)

type cachedPlan struct {
	plan      *calculator.Plan
	updatedAt int64
}

// Engine ties the calculator to storage: it resolves scope types into cached
// plans, loads custom functions per calculation session, persists results and
// refreshes dependent bills. Services share one Engine.
type Engine struct {
	store   storage.Store
	calc    *calculator.Calculator
	metrics *metrics.Metrics
	plans   *lru.Cache[string, cachedPlan]
	timeout time.Duration
	workers int
	logger  *slog.Logger

	billMu sync.Mutex
	bills  map[string]*billLock
}

// billLock serializes refreshes of one bill. refs counts the holders and
// waiters so the entry can be dropped once unused.
type billLock struct {
	mu   sync.Mutex
	refs int
}

var _ calculator.Registry = (*Engine)(nil)

// NewEngine creates an Engine over store. A nil m records into unregistered
// collectors.
func NewEngine(store storage.Store, m *metrics.Metrics, opts EngineOptions) (*Engine, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PlanCacheSize <= 0 {
		opts.PlanCacheSize = defaultPlanCacheSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if m == nil {
		m = metrics.New(nil)
	}
	plans, err := lru.New[string, cachedPlan](opts.PlanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}
	logger := slog.Default().With("component", "engine")
	return &Engine{
		store:   store,
		calc:    calculator.New(opts.Calculator, logger),
		metrics: m,
		plans:   plans,
		timeout: opts.Timeout,
		workers: opts.Workers,
		logger:  logger,
		bills:   make(map[string]*billLock),
	}, nil
}

// LookupScopeType loads a scope type from storage.
func (e *Engine) LookupScopeType(ctx context.Context, name string) (*models.ScopeType, error) {
	st, err := e.store.GetScopeType(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: scope type %q", calculator.ErrConfigNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Plan returns the evaluation plan of a scope type. Plans are cached until the
// stored definition changes.
func (e *Engine) Plan(ctx context.Context, scopeType string) (*calculator.Plan, error) {
	st, err := e.LookupScopeType(ctx, scopeType)
	if err != nil {
		return nil, err
	}
	if c, ok := e.plans.Get(scopeType); ok && c.updatedAt == st.UpdatedAt {
		return c.plan, nil
	}
	plan, err := calculator.NewPlan(st)
	if err != nil {
		return nil, err
	}
	e.plans.Add(scopeType, cachedPlan{plan: plan, updatedAt: st.UpdatedAt})
	e.logger.Debug("Plan compiled",
		"scope_type", scopeType,
		"local", plan.Local(),
		"totals_dependent", plan.TotalsDependent(),
	)
	return plan, nil
}

// Forget drops the cached plan of a scope type.
func (e *Engine) Forget(scopeType string) {
	e.plans.Remove(scopeType)
}

// Functions loads the enabled custom functions for one calculation session.
// Rejected functions are logged and counted, not returned as an error.
func (e *Engine) Functions(ctx context.Context) (*formula.FunctionSet, error) {
	defs, err := e.store.ListCustomFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load custom functions: %w", err)
	}
	fs, rejected := formula.LoadFunctions(defs)
	for _, err := range rejected {
		var rej *formula.RejectedFunction
		if errors.As(err, &rej) {
			e.metrics.RejectedFunctions.WithLabelValues(rej.Name).Inc()
		}
		e.logger.Warn("Custom function rejected", "error", err)
	}
	e.logger.Debug("Custom functions loaded", "functions", fs.Names(), "rejected", len(rejected))
	return fs, nil
}

// Calculate runs one calculation of items under the configured timeout.
func (e *Engine) Calculate(ctx context.Context, scopeType string, items []models.ItemRecord, constants map[string]float64) (*calculator.Result, error) {
	plan, err := e.Plan(ctx, scopeType)
	if err != nil {
		return nil, err
	}
	fs, err := e.Functions(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.calc.Calculate(ctx, plan, calculator.Input{
		Items:     items,
		Constants: constants,
		Functions: fs,
	})
	e.metrics.CalculationTime.WithLabelValues(scopeType).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.Calculations.WithLabelValues(scopeType, outcome(err)).Inc()
		return nil, err
	}
	e.metrics.Calculations.WithLabelValues(scopeType, res.State.String()).Inc()
	e.metrics.CalculationPasses.WithLabelValues(scopeType).Observe(float64(res.Passes))
	return res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}

// commit recalculates rec, stores the result and refreshes the auto-update
// bills that include it. rec is only modified when the calculation succeeds.
func (e *Engine) commit(ctx context.Context, rec *models.ScopeRecord, items []models.ItemRecord) (*calculator.Result, error) {
	res, err := e.Calculate(ctx, rec.ScopeType, items, rec.Constants)
	if err != nil {
		return nil, err
	}
	rec.Items = res.Items
	rec.Totals = res.Totals
	if err := e.store.UpdateScope(ctx, rec); err != nil {
		return nil, err
	}
	e.refreshBills(ctx, rec.ID)
	return res, nil
}

// Recalculate recomputes a stored scope record.
func (e *Engine) Recalculate(ctx context.Context, scopeID string) (*models.ScopeRecord, *calculator.Result, error) {
	rec, err := e.store.GetScope(ctx, scopeID)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.commit(ctx, rec, rec.Items)
	if err != nil {
		return nil, nil, err
	}
	return rec, res, nil
}

// RecalcOutcome is the result of one record of RecalculateAll.
type RecalcOutcome struct {
	ScopeID string
	Result  *calculator.Result
	Err     error
}

// RecalculateAll recomputes many scope records with a bounded number of
// workers. Each record is calculated sequentially on its own; a failing record
// does not stop the others.
func (e *Engine) RecalculateAll(ctx context.Context, scopeIDs []string) []RecalcOutcome {
	out := make([]RecalcOutcome, len(scopeIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, id := range scopeIDs {
		g.Go(func() error {
			_, res, err := e.Recalculate(ctx, id)
			out[i] = RecalcOutcome{ScopeID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Rollup builds the billable totals of the given scope records.
func (e *Engine) Rollup(ctx context.Context, scopeIDs []string) (map[string]map[string]float64, error) {
	views := make([]models.BillableScope, 0, len(scopeIDs))
	for _, id := range scopeIDs {
		view, err := e.BillableScope(ctx, id)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return calculator.Rollup(views), nil
}

// BillableScope returns the billing view of a stored scope record.
func (e *Engine) BillableScope(ctx context.Context, scopeID string) (models.BillableScope, error) {
	rec, err := e.store.GetScope(ctx, scopeID)
	if err != nil {
		return models.BillableScope{}, err
	}
	st, err := e.LookupScopeType(ctx, rec.ScopeType)
	if err != nil {
		return models.BillableScope{}, err
	}
	return calculator.BillableView(st, rec), nil
}

// lockBill blocks until the caller holds the refresh lock of billID and
// returns its release func.
func (e *Engine) lockBill(billID string) func() {
	e.billMu.Lock()
	l, ok := e.bills[billID]
	if !ok {
		l = &billLock{}
		e.bills[billID] = l
	}
	l.refs++
	e.billMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.billMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.bills, billID)
		}
		e.billMu.Unlock()
	}
}

// RefreshBill recomputes and stores the totals of bill. Refreshes of the same
// bill run one at a time, so the rollup that is stored last was also read
// last.
func (e *Engine) RefreshBill(ctx context.Context, bill *models.Bill) error {
	unlock := e.lockBill(bill.ID)
	defer unlock()

	totals, err := e.Rollup(ctx, bill.ScopeIDs)
	if err != nil {
		return err
	}
	bill.Totals = totals
	if err := e.store.UpdateBill(ctx, bill); err != nil {
		return err
	}
	e.metrics.BillRefreshes.Inc()
	return nil
}

// refreshBills updates the auto-update bills that include the scope record.
// Failures are logged; the scope record itself is already stored.
func (e *Engine) refreshBills(ctx context.Context, scopeID string) {
	bills, err := e.store.ListBillsByScope(ctx, scopeID)
	if err != nil {
		e.logger.Error("refreshBills: failed to list bills", "scope_id", scopeID, "error", err)
		return
	}
	for _, bill := range bills {
		if !bill.AutoUpdate {
			continue
		}
		if err := e.RefreshBill(ctx, bill); err != nil {
			e.logger.Error("refreshBills: failed to refresh bill", "bill_id", bill.ID, "scope_id", scopeID, "error", err)
			continue
		}
		e.logger.Info("Bill refreshed", "bill_id", bill.ID, "scope_id", scopeID)
	}
}
