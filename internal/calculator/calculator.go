package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/models"
)

const (
	DefaultTolerance = 1e-4
	DefaultMaxPasses = 10
)

// Options tunes the totals loop.
type Options struct {
	// Tolerance is the largest per-field change that still counts as converged.
	Tolerance float64
	// MaxPasses caps the number of totals loop passes.
	MaxPasses int
}

// DefaultOptions returns the default tolerance and pass cap.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, MaxPasses: DefaultMaxPasses}
}

// State is where a calculation ended.
type State int

const (
	StateInit State = iota
	StateLocalPass
	StateTotalsLoop
	StateConverged
	StateMaxPassesExceeded
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLocalPass:
		return "local_pass"
	case StateTotalsLoop:
		return "totals_loop"
	case StateConverged:
		return "converged"
	case StateMaxPassesExceeded:
		return "max_passes_exceeded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CalculationFailedError aborts a calculation. Field names the calculated
// field or aggregate formula that failed; RowID is set for item fields.
type CalculationFailedError struct {
	Field string
	RowID string
	Err   error
}

func (e *CalculationFailedError) Error() string {
	if e.RowID != "" {
		return fmt.Sprintf("calculation failed at %s (row %s): %v", e.Field, e.RowID, e.Err)
	}
	return fmt.Sprintf("calculation failed at %s: %v", e.Field, e.Err)
}

func (e *CalculationFailedError) Unwrap() error { return e.Err }

// ConvergenceWarning means the totals loop hit the pass cap while values were
// still moving. The results are usable but approximate.
type ConvergenceWarning struct {
	Passes   int
	MaxDelta float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("totals did not converge after %d passes (last change %g)", w.Passes, w.MaxDelta)
}

// Input is one scope record's calculation input.
type Input struct {
	Items     []models.ItemRecord
	Constants map[string]float64
	Functions *formula.FunctionSet
}

// PassStats records one totals loop pass.
type PassStats struct {
	Pass     int
	MaxDelta float64
}

// Result is a successful calculation. Items are new copies; the input is
// never modified.
type Result struct {
	Items    []models.ItemRecord
	Totals   map[string]float64
	State    State
	Passes   int
	History  []PassStats
	Warnings []error
}

// Calculator runs the item calculation state machine.
type Calculator struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Calculator. Zero option values fall back to the defaults.
func New(opts Options, logger *slog.Logger) *Calculator {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{opts: opts, logger: logger}
}

// Calculate computes every calculated field of every item and the final
// doc_totals. Any error aborts the whole calculation and nothing of the
// input is changed.
func (c *Calculator) Calculate(ctx context.Context, plan *Plan, in Input) (*Result, error) {
	// Init: typed copies of every item, defaults for missing fields
	items, vars, err := initItems(plan.scopeType, in.Items)
	if err != nil {
		return nil, err
	}
	constants := plan.scopeType.ResolveConstants(in.Constants)
	res := &Result{State: StateInit}

	res.State = StateLocalPass
	for _, step := range plan.local {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := evalField(step, items, vars, nil, constants, in.Functions); err != nil {
			return nil, err
		}
	}

	if len(plan.dependent) > 0 {
		res.State = StateTotalsLoop
		converged := false
		var delta float64
		for pass := 1; pass <= c.opts.MaxPasses; pass++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			totals, err := plan.Aggregate(vars, constants, in.Functions)
			if err != nil {
				return nil, err
			}

			prev := snapshot(plan.dependent, vars)
			for _, step := range plan.dependent {
				if err := evalField(step, items, vars, totals, constants, in.Functions); err != nil {
					return nil, err
				}
			}

			delta = maxDelta(plan.dependent, prev, vars)
			res.Passes = pass
			res.History = append(res.History, PassStats{Pass: pass, MaxDelta: delta})
			if delta < c.opts.Tolerance {
				converged = true
				break
			}
		}
		if !converged {
			w := &ConvergenceWarning{Passes: res.Passes, MaxDelta: delta}
			res.Warnings = append(res.Warnings, w)
			c.logger.Warn("totals did not converge",
				"scope_type", plan.scopeType.Name,
				"passes", res.Passes,
				"max_delta", delta,
			)
		}
		if converged {
			res.State = StateConverged
		} else {
			res.State = StateMaxPassesExceeded
		}
	} else {
		res.State = StateConverged
	}

	// Final aggregation so doc_totals matches the item values being returned.
	totals, err := plan.Aggregate(vars, constants, in.Functions)
	if err != nil {
		return nil, err
	}
	res.Totals = totals

	for i := range items {
		items[i].Variables = vars[i]
	}
	res.Items = items
	return res, nil
}

func initItems(st *models.ScopeType, in []models.ItemRecord) ([]models.ItemRecord, []models.Values, error) {
	items := make([]models.ItemRecord, len(in))
	vars := make([]models.Values, len(in))
	for i, it := range in {
		cp := it.Clone()
		if cp.Variables == nil {
			cp.Variables = models.Values{}
		}
		for _, f := range st.Fields {
			v, ok := cp.Variables[f.Name]
			var err error
			if !ok || v.IsNull() {
				v, err = f.Default()
			} else {
				v, err = f.Type.Coerce(v)
			}
			if err != nil {
				return nil, nil, &CalculationFailedError{Field: f.Name, RowID: it.RowID, Err: err}
			}
			cp.Variables[f.Name] = v
		}
		items[i] = cp
		vars[i] = cp.Variables
	}
	return items, vars, nil
}

// evalField evaluates one calculated field for every item, writing each
// result back immediately.
func evalField(step *fieldStep, items []models.ItemRecord, vars []models.Values, totals, constants map[string]float64, fs *formula.FunctionSet) error {
	env := &formula.Env{
		Totals:    totals,
		Constants: constants,
		Items:     vars,
		Functions: fs,
	}
	for i := range vars {
		env.Variables = vars[i]
		v, err := step.expr.Eval(env)
		if err == nil {
			v, err = coerceResult(step.def, v)
		}
		if err != nil {
			return &CalculationFailedError{Field: step.def.Name, RowID: items[i].RowID, Err: err}
		}
		vars[i][step.def.Name] = v
	}
	return nil
}

func snapshot(steps []*fieldStep, vars []models.Values) [][]models.Value {
	out := make([][]models.Value, len(vars))
	for i, vs := range vars {
		row := make([]models.Value, len(steps))
		for j, s := range steps {
			row[j] = vs[s.def.Name]
		}
		out[i] = row
	}
	return out
}

// maxDelta is the largest absolute change of any totals-dependent value. A
// changed non-numeric value counts as infinitely far.
func maxDelta(steps []*fieldStep, prev [][]models.Value, vars []models.Values) float64 {
	var worst float64
	for i, vs := range vars {
		for j, s := range steps {
			before, after := prev[i][j], vs[s.def.Name]
			a, aok := before.Number()
			b, bok := after.Number()
			var d float64
			switch {
			case aok && bok:
				d = math.Abs(b - a)
			case before.Equal(after):
				d = 0
			default:
				d = math.Inf(1)
			}
			if d > worst {
				worst = d
			}
		}
	}
	return worst
}
