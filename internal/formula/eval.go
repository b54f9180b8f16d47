package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/mmynk/scopewise/internal/models"
)

// Env is everything a formula can see.
type Env struct {
	// Variables are the current item's values. Nil for aggregate formulas.
	Variables models.Values
	// Totals are the document totals computed so far.
	Totals map[string]float64
	// Constants are the document constants.
	Constants map[string]float64
	// Items is the whole item collection, read by aggregates and filters.
	Items []models.Values
	// Functions are the custom functions available as custom.<name>(...).
	Functions *FunctionSet
}

// Eval evaluates e against env. It has no side effects. Errors are
// *EvaluationError values.
func (e *Expr) Eval(env *Env) (models.Value, error) {
	if env == nil {
		env = &Env{}
	}
	ev := &evaluator{env: env}
	v, err := ev.eval(e.Root)
	if err == nil {
		err = checkFinite(v)
	}
	if err != nil {
		return models.Value{}, &EvaluationError{Formula: e.Source, Err: err}
	}
	return v, nil
}

// EvalNumber evaluates e and requires a numeric (or boolean) result.
func (e *Expr) EvalNumber(env *Env) (float64, error) {
	v, err := e.Eval(env)
	if err != nil {
		return 0, err
	}
	f, ok := v.Number()
	if !ok {
		return 0, &EvaluationError{Formula: e.Source, Err: fmt.Errorf("%w: result %q is not a number", ErrType, v.String())}
	}
	return f, nil
}

type evaluator struct {
	env *Env
	// sandboxed is set inside custom function bodies, where only locals and
	// the math surface are visible.
	sandboxed bool
	locals    map[string]models.Value
}

func (ev *evaluator) eval(n Node) (models.Value, error) {
	switch n := n.(type) {
	case NumberLit:
		return models.Float(n.Value), nil
	case StringLit:
		return models.Text(n.Value), nil
	case BoolLit:
		return models.Bool(n.Value), nil
	case Ident:
		if v, ok := ev.locals[n.Name]; ok {
			return v, nil
		}
		return models.Value{}, fmt.Errorf("%w: name %q", ErrUndefined, n.Name)
	case Ref:
		return ev.ref(n)
	case Unary:
		return ev.unary(n)
	case Binary:
		return ev.binary(n)
	case Cond:
		test, err := ev.eval(n.Test)
		if err != nil {
			return models.Value{}, err
		}
		if test.Truthy() {
			return ev.eval(n.Then)
		}
		return ev.eval(n.Else)
	case Call:
		return ev.call(n)
	case FilterReduce:
		if ev.sandboxed {
			return models.Value{}, fmt.Errorf("%w: items are not available inside custom functions", ErrUndefined)
		}
		return filterReduce(n, ev.env.Items)
	}
	return models.Value{}, fmt.Errorf("%w: unknown node %T", ErrSyntax, n)
}

func (ev *evaluator) ref(n Ref) (models.Value, error) {
	if ev.sandboxed {
		return models.Value{}, fmt.Errorf("%w: %s is not available inside custom functions", ErrUndefined, n)
	}
	switch n.Namespace {
	case NSVariables:
		if ev.env.Variables == nil {
			return models.Value{}, fmt.Errorf("%w: variables are not available in aggregate formulas", ErrUndefined)
		}
		v, ok := ev.env.Variables[n.Name]
		if !ok {
			return models.Value{}, fmt.Errorf("%w: %s", ErrUndefined, n)
		}
		return v, nil
	case NSTotals:
		v, ok := ev.env.Totals[n.Name]
		if !ok {
			return models.Value{}, fmt.Errorf("%w: %s", ErrUndefined, n)
		}
		return models.Float(v), nil
	case NSConstants:
		v, ok := ev.env.Constants[n.Name]
		if !ok {
			return models.Value{}, fmt.Errorf("%w: %s", ErrUndefined, n)
		}
		return models.Float(v), nil
	}
	return models.Value{}, fmt.Errorf("%w: %s outside of a filter", ErrUndefined, n)
}

func (ev *evaluator) unary(n Unary) (models.Value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return models.Value{}, err
	}
	if n.Op == "!" {
		return models.Bool(!x.Truthy()), nil
	}
	f, ok := x.Number()
	if !ok {
		return models.Value{}, fmt.Errorf("%w: unary %s on %s", ErrType, n.Op, x.Kind())
	}
	if n.Op == "-" {
		f = -f
	}
	return models.Float(f), nil
}

func (ev *evaluator) binary(n Binary) (models.Value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return models.Value{}, err
	}
	switch n.Op {
	case "&&":
		if !x.Truthy() {
			return models.Bool(false), nil
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return models.Value{}, err
		}
		return models.Bool(y.Truthy()), nil
	case "||":
		if x.Truthy() {
			return models.Bool(true), nil
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return models.Value{}, err
		}
		return models.Bool(y.Truthy()), nil
	}

	y, err := ev.eval(n.Y)
	if err != nil {
		return models.Value{}, err
	}
	switch n.Op {
	case "==":
		return models.Bool(x.Equal(y)), nil
	case "!=":
		return models.Bool(!x.Equal(y)), nil
	case "<", "<=", ">", ">=":
		c, err := compare(x, y)
		if err != nil {
			return models.Value{}, err
		}
		return models.Bool(ordered(n.Op, c)), nil
	case "+":
		if x.Kind() == models.KindText && y.Kind() == models.KindText {
			return models.Text(x.String() + y.String()), nil
		}
	}

	a, aok := x.Number()
	b, bok := y.Number()
	if !aok || !bok {
		return models.Value{}, fmt.Errorf("%w: %s %s %s", ErrType, x.Kind(), n.Op, y.Kind())
	}
	switch n.Op {
	case "+":
		return models.Float(a + b), nil
	case "-":
		return models.Float(a - b), nil
	case "*":
		return models.Float(a * b), nil
	case "/":
		if b == 0 {
			return models.Value{}, ErrDivisionByZero
		}
		return models.Float(a / b), nil
	case "%":
		if b == 0 {
			return models.Value{}, ErrDivisionByZero
		}
		return models.Float(math.Mod(a, b)), nil
	case "**":
		return models.Float(math.Pow(a, b)), nil
	}
	return models.Value{}, fmt.Errorf("%w: %q", ErrUnsupportedOperator, n.Op)
}

// compare orders two numbers or two texts.
func compare(x, y models.Value) (int, error) {
	if a, ok := x.Number(); ok {
		if b, ok := y.Number(); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x.Kind() == models.KindText && y.Kind() == models.KindText {
		return strings.Compare(x.String(), y.String()), nil
	}
	return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrType, x.Kind(), y.Kind())
}

func ordered(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func (ev *evaluator) call(n Call) (models.Value, error) {
	if isAggregate(n) {
		if ev.sandboxed {
			return models.Value{}, fmt.Errorf("%w: %s is not available inside custom functions", ErrUndefined, n.Name)
		}
		return aggregate(n.Name, n.Args[0].(StringLit).Value, ev.env.Items)
	}

	args := make([]models.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.eval(a)
		if err != nil {
			return models.Value{}, err
		}
		args[i] = v
	}

	if n.Namespace == "custom" {
		if ev.sandboxed || ev.env.Functions == nil {
			return models.Value{}, fmt.Errorf("%w: custom.%s", ErrUndefined, n.Name)
		}
		nums, err := numericArgs(n, args)
		if err != nil {
			return models.Value{}, err
		}
		f, err := ev.env.Functions.Call(n.Name, nums)
		if err != nil {
			return models.Value{}, err
		}
		return models.Float(f), nil
	}

	fn, ok := mathFuncs[n.Name]
	if !ok {
		return models.Value{}, fmt.Errorf("%w: unknown function %s", ErrUndefined, n.Name)
	}
	return fn.call(n, args)
}

func numericArgs(n Call, args []models.Value) ([]float64, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		f, ok := a.Number()
		if !ok {
			return nil, fmt.Errorf("%w: argument %d of %s is %s, not a number", ErrType, i+1, n, a.Kind())
		}
		nums[i] = f
	}
	return nums, nil
}

func checkFinite(v models.Value) error {
	if f, ok := v.Number(); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return nil
}
