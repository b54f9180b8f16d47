package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mmynk/scopewise/internal/models"
)

// aggregate reduces field over the whole item collection. Missing values count
// as zero; avg, min and max of an empty collection are zero.
func aggregate(name, field string, items []models.Values) (models.Value, error) {
	switch name {
	case "count":
		n := 0
		for _, it := range items {
			if v, ok := it[field]; ok && !v.IsNull() {
				n++
			}
		}
		return models.Int(int64(n)), nil
	case "distinct_count":
		seen := make(map[string]bool)
		for _, it := range items {
			if v, ok := it[field]; ok && !v.IsNull() {
				seen[distinctKey(v)] = true
			}
		}
		return models.Int(int64(len(seen))), nil
	}

	xs := make([]float64, 0, len(items))
	for _, it := range items {
		x, err := numberField(it, field)
		if err != nil {
			return models.Value{}, err
		}
		xs = append(xs, x)
	}
	return reduce(name, xs), nil
}

func reduce(name string, xs []float64) models.Value {
	if len(xs) == 0 {
		return models.Float(0)
	}
	switch name {
	case ReduceAvg:
		return models.Float(stat.Mean(xs, nil))
	case ReduceMin:
		return models.Float(floats.Min(xs))
	case ReduceMax:
		return models.Float(floats.Max(xs))
	default:
		return models.Float(floats.Sum(xs))
	}
}

func numberField(it models.Values, field string) (float64, error) {
	v, ok := it[field]
	if !ok || v.IsNull() {
		return 0, nil
	}
	f, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("%w: field %q holds non-numeric value %q", ErrType, field, v.String())
	}
	return f, nil
}

func distinctKey(v models.Value) string {
	if f, ok := v.Number(); ok && v.Kind() != models.KindBool {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v.Kind().String() + ":" + v.String()
}

func filterReduce(fr FilterReduce, items []models.Values) (models.Value, error) {
	var xs []float64
	matched := 0
	for _, it := range items {
		if !matches(fr.Filter, it) {
			continue
		}
		matched++
		if fr.Reduce == ReduceCount {
			continue
		}
		x, err := numberField(it, fr.Field)
		if err != nil {
			return models.Value{}, err
		}
		xs = append(xs, x)
	}
	if fr.Reduce == ReduceCount {
		return models.Int(int64(matched)), nil
	}
	v := reduce(fr.Reduce, xs)
	if fr.Reduce == ReduceSum {
		return models.Float(fr.Initial + v.Float()), nil
	}
	return v, nil
}

// matches evaluates a normalised filter against one item. A missing field, or a
// value that cannot be ordered against the literal, never matches.
func matches(n Node, it models.Values) bool {
	b := n.(Binary)
	switch b.Op {
	case "&&":
		return matches(b.X, it) && matches(b.Y, it)
	case "||":
		return matches(b.X, it) || matches(b.Y, it)
	}
	ref := b.X.(Ref)
	v, ok := it[ref.Name]
	if !ok || v.IsNull() {
		return false
	}
	lit := literalValue(b.Y)
	switch b.Op {
	case "==":
		return v.Equal(lit)
	case "!=":
		return !v.Equal(lit)
	}
	c, err := compare(v, lit)
	if err != nil {
		return false
	}
	return ordered(b.Op, c)
}

func literalValue(n Node) models.Value {
	switch n := n.(type) {
	case NumberLit:
		return models.Float(n.Value)
	case StringLit:
		return models.Text(n.Value)
	case BoolLit:
		return models.Bool(n.Value)
	}
	return models.Null()
}

// mathFunc is one entry of the fixed math surface. loose functions accept text
// and read it as a number, defaulting to zero.
type mathFunc struct {
	minArgs, maxArgs int // maxArgs < 0 means variadic
	loose            bool
	fn               func(a []float64) float64
}

var mathFuncs = map[string]mathFunc{
	"abs":   {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Ceil(a[0]) }},
	"sqrt":  {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"exp":   {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":   {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Log(a[0]) }},
	"log10": {minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return math.Log10(a[0]) }},
	"pow":   {minArgs: 2, maxArgs: 2, fn: func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"round": {minArgs: 1, maxArgs: 2, fn: roundTo},
	"min":   {minArgs: 2, maxArgs: -1, fn: floats.Min},
	"max":   {minArgs: 2, maxArgs: -1, fn: floats.Max},
	"flt":   {minArgs: 1, maxArgs: 2, loose: true, fn: roundTo},
	"cint":  {minArgs: 1, maxArgs: 1, loose: true, fn: func(a []float64) float64 { return math.Trunc(a[0]) }},
}

// roundTo rounds a[0] half away from zero to a[1] decimals (0 when absent).
// A single argument to flt is returned unchanged.
func roundTo(a []float64) float64 {
	if len(a) == 1 {
		return a[0]
	}
	p := math.Pow(10, math.Trunc(a[1]))
	return math.Round(a[0]*p) / p
}

func (m mathFunc) call(n Call, args []models.Value) (models.Value, error) {
	if len(args) < m.minArgs || (m.maxArgs >= 0 && len(args) > m.maxArgs) {
		return models.Value{}, fmt.Errorf("%w: %s called with %d arguments", ErrSyntax, n.Name, len(args))
	}
	nums := make([]float64, len(args))
	for i, a := range args {
		f, ok := a.Number()
		switch {
		case ok:
		case m.loose:
			f, _ = strconv.ParseFloat(strings.TrimSpace(a.String()), 64)
		default:
			return models.Value{}, fmt.Errorf("%w: argument %d of %s is %s, not a number", ErrType, i+1, n.Name, a.Kind())
		}
		nums[i] = f
	}
	// round with a single argument rounds to an integer.
	if n.Name == "round" && len(nums) == 1 {
		return models.Float(math.Round(nums[0])), nil
	}
	return models.Float(m.fn(nums)), nil
}
