package calculator

import (
	"fmt"
	"strings"

	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/models"
)

// Partition says when a calculated field is evaluated.
type Partition string

const (
	// PartitionLocal fields are evaluated once, before any totals exist.
	PartitionLocal Partition = "local"
	// PartitionTotals fields read doc_totals, directly or through another
	// field, and are evaluated inside the totals loop.
	PartitionTotals Partition = "totals"
)

// CyclicDependencyError reports calculated fields that depend on each other.
// Path starts and ends with the same field.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

type fieldStep struct {
	def       models.FieldDefinition
	expr      *formula.Expr
	deps      []string // calculated fields read per item or across the collection
	totals    []string
	partition Partition
}

type aggregateStep struct {
	def  models.AggregateFormula
	expr *formula.Expr
}

// Plan is the compiled, ordered form of a scope type. It is immutable and
// safe to share between concurrent calculations.
type Plan struct {
	scopeType  *models.ScopeType
	local      []*fieldStep
	dependent  []*fieldStep
	aggregates []aggregateStep
}

// NewPlan validates st, compiles its formulas and orders its calculated fields.
func NewPlan(st *models.ScopeType) (*Plan, error) {
	if err := checkStructure(st); err != nil {
		return nil, err
	}

	fields := make(map[string]models.FieldDefinition, len(st.Fields))
	for _, f := range st.Fields {
		fields[f.Name] = f
	}
	totalNames := make(map[string]bool, len(st.Formulas))
	for _, a := range st.Formulas {
		totalNames[a.Name] = true
	}

	steps := make(map[string]*fieldStep)
	var declared []string
	for _, f := range st.Fields {
		if !f.Calculated() {
			continue
		}
		expr, err := formula.Compile(f.Formula)
		if err != nil {
			return nil, &CalculationFailedError{Field: f.Name, Err: err}
		}
		refs := expr.References()
		step := &fieldStep{def: f, expr: expr, totals: refs.Totals}
		for _, name := range append(refs.Variables, refs.ItemFields...) {
			if _, ok := fields[name]; !ok {
				return nil, fmt.Errorf("%w: field %q references %q", ErrUnknownField, f.Name, name)
			}
			if fields[name].Calculated() && !contains(step.deps, name) {
				step.deps = append(step.deps, name)
			}
		}
		for _, name := range refs.Totals {
			if !totalNames[name] {
				return nil, fmt.Errorf("%w: field %q references doc_totals[%q]", ErrUnknownField, f.Name, name)
			}
		}
		steps[f.Name] = step
		declared = append(declared, f.Name)
	}

	order, err := topoSort(declared, steps)
	if err != nil {
		return nil, err
	}

	p := &Plan{scopeType: st}
	for _, name := range order {
		step := steps[name]
		step.partition = PartitionLocal
		if len(step.totals) > 0 {
			step.partition = PartitionTotals
		}
		for _, d := range step.deps {
			if steps[d].partition == PartitionTotals {
				step.partition = PartitionTotals
			}
		}
		if step.partition == PartitionLocal {
			p.local = append(p.local, step)
		} else {
			p.dependent = append(p.dependent, step)
		}
	}

	seen := make(map[string]bool, len(st.Formulas))
	for _, a := range st.Formulas {
		expr, err := formula.Compile(a.Formula)
		if err != nil {
			return nil, &CalculationFailedError{Field: a.Name, Err: err}
		}
		refs := expr.References()
		if len(refs.Variables) > 0 {
			return nil, fmt.Errorf("%w: formula %q reads variables[%q] outside of an item", ErrUnknownField, a.Name, refs.Variables[0])
		}
		for _, name := range refs.ItemFields {
			if _, ok := fields[name]; !ok {
				return nil, fmt.Errorf("%w: formula %q aggregates %q", ErrUnknownField, a.Name, name)
			}
		}
		for _, name := range refs.Totals {
			if !seen[name] {
				return nil, fmt.Errorf("%w: formula %q reads doc_totals[%q] before it is computed", ErrUnknownField, a.Name, name)
			}
		}
		seen[a.Name] = true
		p.aggregates = append(p.aggregates, aggregateStep{def: a, expr: expr})
	}
	return p, nil
}

// topoSort orders calculated fields so every field follows the fields it
// reads. It walks depth first in declaration order, marking fields gray while
// their dependencies are visited; reaching a gray field again is a cycle.
func topoSort(declared []string, steps map[string]*fieldStep) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(declared))
	order := make([]string, 0, len(declared))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), name)
			return &CyclicDependencyError{Path: path}
		}
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range steps[name].deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range declared {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ScopeType returns the scope type the plan was built from.
func (p *Plan) ScopeType() *models.ScopeType { return p.scopeType }

// Local returns the item-local fields in evaluation order.
func (p *Plan) Local() []string { return names(p.local) }

// TotalsDependent returns the totals-dependent fields in evaluation order.
func (p *Plan) TotalsDependent() []string { return names(p.dependent) }

func names(steps []*fieldStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.def.Name
	}
	return out
}

// Step describes one evaluation in a plan, for consumers that reproduce the
// evaluation order outside the engine (spreadsheet exporters and the like).
type Step struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Formula   string    `json:"formula"`
	Partition Partition `json:"partition,omitempty"`
	Aggregate bool      `json:"aggregate,omitempty"`
	DependsOn []string  `json:"depends_on,omitempty"`
	Totals    []string  `json:"doc_totals,omitempty"`
}

// Order returns every evaluation in order: local fields, totals-dependent
// fields, then aggregate formulas in configuration order.
func (p *Plan) Order() []Step {
	out := make([]Step, 0, len(p.local)+len(p.dependent)+len(p.aggregates))
	for _, group := range [][]*fieldStep{p.local, p.dependent} {
		for _, s := range group {
			out = append(out, Step{
				Name:      s.def.Name,
				Label:     s.def.DisplayName(),
				Formula:   s.def.Formula,
				Partition: s.partition,
				DependsOn: s.deps,
				Totals:    s.totals,
			})
		}
	}
	for _, a := range p.aggregates {
		out = append(out, Step{
			Name:      a.def.Name,
			Label:     a.def.DisplayName(),
			Formula:   a.def.Formula,
			Aggregate: true,
			Totals:    a.expr.References().Totals,
		})
	}
	return out
}
