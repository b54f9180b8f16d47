package calculator

import (
	"fmt"
	"math"

	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/models"
)

// Aggregate evaluates the plan's aggregate formulas over items and returns a
// fresh doc_totals map. Formulas run in configuration order and each result is
// visible to the formulas after it.
func (p *Plan) Aggregate(items []models.Values, constants map[string]float64, fs *formula.FunctionSet) (map[string]float64, error) {
	totals := make(map[string]float64, len(p.aggregates))
	env := &formula.Env{
		Totals:    totals,
		Constants: constants,
		Items:     items,
		Functions: fs,
	}
	for _, a := range p.aggregates {
		v, err := a.expr.EvalNumber(env)
		if err != nil {
			return nil, &CalculationFailedError{Field: a.def.Name, Err: err}
		}
		if a.def.Type == models.FieldInt {
			v = math.Trunc(v)
		}
		totals[a.def.Name] = v
	}
	return totals, nil
}

// coerceResult converts a formula result to the declared type of field.
func coerceResult(field models.FieldDefinition, v models.Value) (models.Value, error) {
	out, err := field.Type.Coerce(v)
	if err != nil {
		return models.Value{}, fmt.Errorf("%w: %v", formula.ErrType, err)
	}
	return out, nil
}
