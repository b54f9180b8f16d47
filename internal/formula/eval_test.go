package formula

import (
	"errors"
	"math"
	"testing"

	"github.com/mmynk/scopewise/internal/models"
)

func testItems() []models.Values {
	return []models.Values{
		{"type": models.Text("X"), "qty": models.Float(2), "done": models.Bool(true)},
		{"type": models.Text("Y"), "qty": models.Float(5), "done": models.Bool(false)},
		{"type": models.Text("X"), "qty": models.Float(3), "done": models.Bool(true)},
	}
}

func TestEvalNumbers(t *testing.T) {
	env := &Env{
		Variables: models.Values{"qty": models.Int(4), "rate": models.Float(2.5)},
		Totals:    map[string]float64{"total": 100},
		Constants: map[string]float64{"vat": 5},
		Items:     testItems(),
	}

	tests := []struct {
		name    string
		formula string
		want    float64
	}{
		{"precedence", "1 + 2 * 3", 7},
		{"parens", "(1 + 2) * 3", 9},
		{"power is right associative", "2 ** 3 ** 2", 512},
		{"unary minus binds looser than power", "-2 ** 2", -4},
		{"modulo", "10 % 4", 2},
		{"true division", "7 / 2", 3.5},
		{"variables bracket", "variables['qty'] * variables[\"rate\"]", 10},
		{"variables dot", "variables.qty + 1", 5},
		{"doc totals and constants", "doc_totals['total'] * constants['vat'] / 100", 5},
		{"ternary", "variables['qty'] > 2 ? 1 : 0", 1},
		{"python conditional", "10 if variables['qty'] < 2 else 20", 20},
		{"round", "round(3.14159, 2)", 3.14},
		{"round to integer", "round(2.5)", 3},
		{"numeric max", "max(1, 5, 3)", 5},
		{"numeric min", "min(4, -1)", -1},
		{"math namespace", "math.sqrt(16) + math.ceil(0.2)", 5},
		{"flt parses text", "flt('2.5')", 2.5},
		{"cint truncates", "cint(-3.9)", -3},
		{"bool arithmetic", "(1 < 2) + 1", 2},
		{"sum aggregate", "sum('qty')", 10},
		{"avg aggregate", "avg('qty') * 3", 10},
		{"min aggregate", "min('qty')", 2},
		{"max aggregate", "max('qty')", 5},
		{"count aggregate", "count('qty')", 3},
		{"distinct count", "distinct_count('type')", 2},
		{"missing field sums to zero", "sum('width')", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.formula)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v", tt.formula, err)
			}
			got, err := e.EvalNumber(env)
			if err != nil {
				t.Fatalf("EvalNumber(%q) error = %v", tt.formula, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EvalNumber(%q) = %v, want %v", tt.formula, got, tt.want)
			}
		})
	}
}

func TestEvalNonNumeric(t *testing.T) {
	env := &Env{Variables: models.Values{"kind": models.Text("door"), "flag": models.Bool(true)}}

	tests := []struct {
		formula string
		want    models.Value
	}{
		{"'a' + 'b'", models.Text("ab")},
		{"variables['kind'] == 'door'", models.Bool(true)},
		{"variables['kind'] !== 'door'", models.Bool(false)},
		{"not variables['flag']", models.Bool(false)},
		{"variables['flag'] && 'x' < 'y'", models.Bool(true)},
		{"variables['kind'] == 'window' ? 'W' : 'D'", models.Text("D")},
		{"3 > 2 > 1", models.Bool(true)},
		{"1 < 3 > 2", models.Bool(true)},
		{"3 > 2 > 2", models.Bool(false)},
		{"1 == 1 == 1", models.Bool(true)},
		{"variables['flag'] == 1", models.Bool(true)},
		{"variables['flag'] != 0", models.Bool(true)},
	}
	for _, tt := range tests {
		got, err := MustCompile(tt.formula).Eval(env)
		if err != nil {
			t.Errorf("Eval(%q) error = %v", tt.formula, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Eval(%q) = %v, want %v", tt.formula, got, tt.want)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	env := &Env{
		Variables: models.Values{"qty": models.Int(1), "kind": models.Text("door")},
		Totals:    map[string]float64{},
		Items:     testItems(),
	}

	tests := []struct {
		name    string
		formula string
		wantErr error
	}{
		{"division by zero", "variables['qty'] / 0", ErrDivisionByZero},
		{"modulo by zero", "5 % (variables['qty'] - 1)", ErrDivisionByZero},
		{"undefined variable", "variables['width'] * 2", ErrUndefined},
		{"undefined total", "doc_totals['grand_total']", ErrUndefined},
		{"undefined constant", "constants['vat']", ErrUndefined},
		{"bare name", "qty * 2", ErrUndefined},
		{"custom without functions", "custom.double(1)", ErrUndefined},
		{"text arithmetic", "variables['kind'] * 2", ErrType},
		{"non-finite", "math.sqrt(-1)", ErrNonFinite},
		{"sum of text field", "sum('type')", ErrType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MustCompile(tt.formula).Eval(env)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Eval(%q) error = %v, want %v", tt.formula, err, tt.wantErr)
			}
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) || evalErr.Formula != tt.formula {
				t.Errorf("error %v does not carry the formula", err)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		wantErr error
	}{
		{"empty", "   ", ErrSyntax},
		{"dangling operator", "1 +", ErrSyntax},
		{"unclosed paren", "(1 + 2", ErrSyntax},
		{"unterminated string", "'abc", ErrSyntax},
		{"aggregate needs quoted field", "sum(qty)", ErrSyntax},
		{"dynamic variable key", "variables[1]", ErrSyntax},
		{"assignment in formula", "x = 1", ErrSyntax},
		{"filter without reduction", "items.filter(item => item.qty > 1)", ErrSyntax},
		{"filter comparing two fields", "items.filter(item => item.qty > item.min).sum('qty')", ErrSyntax},
		{"arithmetic in filter", "items.filter(item => item.qty % 2).sum('qty')", ErrUnsupportedOperator},
		{"negation in filter", "items.filter(item => !item.done).count()", ErrUnsupportedOperator},
		{"malformed reduce", "items.filter(item => item.qty > 1).reduce((a, item) => a * item.qty, 1)", ErrSyntax},
		{"unknown function", "frobnicate(1)", ErrUndefined},
		{"unknown math function", "math.tanh(1)", ErrUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.formula)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compile(%q) error = %v, want %v", tt.formula, err, tt.wantErr)
			}
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) {
				t.Errorf("Compile(%q) error is %T, want *EvaluationError", tt.formula, err)
			}
		})
	}
}

func TestFilterReduce(t *testing.T) {
	env := &Env{Items: testItems()}

	tests := []struct {
		name    string
		formula string
		want    float64
	}{
		{"reduce sum", "items.filter(item => item.type === 'X').reduce((sum, item) => sum + item.qty, 0)", 5},
		{"reduce with initial", "items.filter(item => item.type === 'X').reduce((acc, it) => it.qty + acc, 10)", 15},
		{"sum method", "items.filter(item => item.type == 'X').sum('qty')", 5},
		{"and", "items.filter(item => item.type === 'X' && item.qty > 2).sum('qty')", 3},
		{"or", "items.filter(item => item.type === 'Y' || item.qty < 3).sum('qty')", 7},
		{"literal on the left", "items.filter(item => 2 < item.qty).sum('qty')", 8},
		{"parenthesised arrow", "items.filter((item) => (item.qty >= 3)).count()", 2},
		{"count", "items.filter(item => item.type !== 'Y').count()", 2},
		{"length", "items.filter(item => item.type === 'X').length", 2},
		{"avg", "items.filter(item => item.type === 'X').avg('qty')", 2.5},
		{"min", "items.filter(item => item.type === 'X').min('qty')", 2},
		{"max", "items.filter(item => item.type === 'X').max('qty')", 3},
		{"empty min is zero", "items.filter(item => item.type === 'Z').min('qty')", 0},
		{"empty max is zero", "items.filter(item => item.type === 'Z').max('qty')", 0},
		{"check field equals one", "items.filter(item => item.done == 1).sum('qty')", 5},
		{"missing field never matches", "items.filter(item => item.color == 'red').count()", 0},
		{"composes with arithmetic", "items.filter(item => item.type === 'X').sum('qty') * 2 + 1", 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MustCompile(tt.formula).EvalNumber(env)
			if err != nil {
				t.Fatalf("EvalNumber(%q) error = %v", tt.formula, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EvalNumber(%q) = %v, want %v", tt.formula, got, tt.want)
			}
		})
	}
}

func TestEmptyCollection(t *testing.T) {
	env := &Env{Items: nil}
	for _, f := range []string{"sum('qty')", "avg('qty')", "min('qty')", "max('qty')", "count('qty')", "distinct_count('qty')"} {
		got, err := MustCompile(f).EvalNumber(env)
		if err != nil {
			t.Errorf("EvalNumber(%q) error = %v", f, err)
			continue
		}
		if got != 0 {
			t.Errorf("EvalNumber(%q) = %v, want 0", f, got)
		}
	}
}

func TestReferences(t *testing.T) {
	e := MustCompile("variables['a'] * doc_totals['t'] + constants['c'] + sum('q') + custom.f(variables['a'])")
	refs := e.References()

	check := func(name string, got, want []string) {
		t.Helper()
		if len(got) != len(want) {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("%s = %v, want %v", name, got, want)
				return
			}
		}
	}
	check("Variables", refs.Variables, []string{"a"})
	check("Totals", refs.Totals, []string{"t"})
	check("Constants", refs.Constants, []string{"c"})
	check("ItemFields", refs.ItemFields, []string{"q"})
	check("Functions", refs.Functions, []string{"f"})
	if !refs.UsesTotals() {
		t.Error("UsesTotals() = false, want true")
	}

	// Accessor text inside a string literal is not a reference.
	quoted := MustCompile(`variables['a'] if 'variables["b"] doc_totals["x"]' == '' else 1`).References()
	check("quoted Variables", quoted.Variables, []string{"a"})
	if quoted.UsesTotals() {
		t.Error("quoted UsesTotals() = true, want false")
	}

	filtered := MustCompile("items.filter(item => item.kind == 'A').sum('qty')").References()
	check("filter ItemFields", filtered.ItemFields, []string{"qty", "kind"})
}
