package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/scopewise/internal/models"
)

// BillableView reduces a calculated scope record to what billing may see:
// in_bill item fields, in_bill totals and in_bill constants. Currency totals
// are rounded to cents.
func BillableView(st *models.ScopeType, rec *models.ScopeRecord) models.BillableScope {
	view := models.BillableScope{
		ScopeID:   rec.ID,
		ScopeType: rec.ScopeType,
		Items:     make(map[string]models.BillableItem, len(rec.Items)),
		Totals:    make(map[string]float64),
		Constants: make(map[string]float64),
	}

	for _, it := range rec.Items {
		values := make(models.Values)
		for _, f := range st.Fields {
			if !f.InBill {
				continue
			}
			if v, ok := it.Variables[f.Name]; ok {
				values[f.Name] = v
			}
		}
		view.Items[it.RowID] = models.BillableItem{ItemName: it.ItemName, Values: values}
	}

	for _, a := range st.Formulas {
		if !a.InBill {
			continue
		}
		if v, ok := rec.Totals[a.Name]; ok {
			if a.Type == models.FieldCurrency {
				v = roundCents(v)
			}
			view.Totals[a.Name] = v
		}
	}

	constants := st.ResolveConstants(rec.Constants)
	for _, c := range st.Constants {
		if c.InBill {
			view.Constants[c.Name] = constants[c.Name]
		}
	}
	return view
}

func roundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Rollup sums billable totals per scope type. Sums are exact decimal sums of
// the stored float values.
func Rollup(views []models.BillableScope) map[string]map[string]float64 {
	sums := make(map[string]map[string]decimal.Decimal)
	for _, v := range views {
		byName, ok := sums[v.ScopeType]
		if !ok {
			byName = make(map[string]decimal.Decimal)
			sums[v.ScopeType] = byName
		}
		for name, total := range v.Totals {
			byName[name] = byName[name].Add(decimal.NewFromFloat(total))
		}
	}

	out := make(map[string]map[string]float64, len(sums))
	for scopeType, byName := range sums {
		totals := make(map[string]float64, len(byName))
		for name, d := range byName {
			f, _ := d.Float64()
			totals[name] = f
		}
		out[scopeType] = totals
	}
	return out
}

// GrandTotal adds up one billable total across every scope type of a rollup.
func GrandTotal(rollup map[string]map[string]float64, name string) float64 {
	sum := decimal.Zero
	for _, totals := range rollup {
		if v, ok := totals[name]; ok {
			sum = sum.Add(decimal.NewFromFloat(v))
		}
	}
	f, _ := sum.Float64()
	return f
}
