package formula

import (
	"errors"
	"math"
	"testing"

	"github.com/mmynk/scopewise/internal/models"
)

func TestLoadFunctions(t *testing.T) {
	defs := []models.CustomFunction{
		{Name: "double", Parameters: []string{"x"}, Body: "result = x * 2"},
		{Name: "avg2", Parameters: []string{"a", "b"}, Body: "total = a + b\nresult = total / 2"},
		{Name: "area", Parameters: []string{"w", "h"}, Body: "return math.ceil(w * h / 10000 * 100) / 100"},
		{Name: "singular", Parameters: []string{"x"}, Body: "result = 1 / (x - 1)"},
		{Name: "noresult", Parameters: []string{"x"}, Body: "y = x"},
		{Name: "texty", Parameters: []string{"x"}, Body: "result = 'a'"},
		{Name: "nosy", Parameters: []string{"x"}, Body: "result = variables['qty'] * x"},
		{Name: "broken", Parameters: []string{"x"}, Body: "result = x +"},
		{Name: "off", Parameters: []string{"x"}, Body: "result = 1 / 0", Disabled: true},
	}

	fs, errs := LoadFunctions(defs)

	wantNames := []string{"area", "avg2", "double"}
	got := fs.Names()
	if len(got) != len(wantNames) {
		t.Fatalf("Names() = %v, want %v", got, wantNames)
	}
	for i := range got {
		if got[i] != wantNames[i] {
			t.Fatalf("Names() = %v, want %v", got, wantNames)
		}
	}

	if len(errs) != 5 {
		t.Fatalf("got %d rejections, want 5: %v", len(errs), errs)
	}
	for _, err := range errs {
		var rej *RejectedFunction
		if !errors.As(err, &rej) {
			t.Errorf("rejection %v is %T, want *RejectedFunction", err, err)
		}
		if !IsRejected(err) {
			t.Errorf("IsRejected(%v) = false", err)
		}
	}
	if fs.Rejection("singular") == nil {
		t.Error("singular should be rejected")
	}
	if fs.Rejection("off") != nil {
		t.Error("disabled functions are skipped, not rejected")
	}

	v, err := fs.Call("avg2", []float64{3, 5})
	if err != nil || v != 4 {
		t.Errorf("avg2(3, 5) = %v, %v; want 4", v, err)
	}
	v, err = fs.Call("area", []float64{120, 250})
	if err != nil || math.Abs(v-3) > 1e-9 {
		t.Errorf("area(120, 250) = %v, %v; want 3", v, err)
	}
	if _, err := fs.Call("double", []float64{1, 2}); err == nil {
		t.Error("expected arity error")
	}
}

func TestCustomFunctionsInFormulas(t *testing.T) {
	fs, _ := LoadFunctions([]models.CustomFunction{
		{Name: "double", Parameters: []string{"x"}, Body: "result = x * 2"},
		{Name: "singular", Parameters: []string{"x"}, Body: "result = 1 / (x - 1)"},
	})
	env := &Env{Variables: models.Values{"qty": models.Float(3)}, Functions: fs}

	got, err := MustCompile("custom.double(variables['qty']) + 1").EvalNumber(env)
	if err != nil || got != 7 {
		t.Errorf("custom.double = %v, %v; want 7", got, err)
	}

	// Works for 3 but was rejected on its smoke test, so the call must fail.
	_, err = MustCompile("custom.singular(variables['qty'])").Eval(env)
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error = %v, want *EvaluationError", err)
	}
	if !IsRejected(err) {
		t.Errorf("error %v should report the rejection", err)
	}

	_, err = MustCompile("custom.missing(1)").Eval(env)
	if !errors.Is(err, ErrUndefined) {
		t.Errorf("error = %v, want ErrUndefined", err)
	}
}

func TestValidateFunction(t *testing.T) {
	if err := ValidateFunction(models.CustomFunction{Name: "ok", Parameters: []string{"x"}, Body: "result = x"}); err != nil {
		t.Errorf("ValidateFunction(ok) = %v", err)
	}
	tests := []models.CustomFunction{
		{Name: "bad name", Body: "result = 1"},
		{Name: "dup", Parameters: []string{"x", "x"}, Body: "result = x"},
		{Name: "empty", Body: ""},
		{Name: "sum", Parameters: []string{"x"}, Body: "result = sum('qty')"},
	}
	for _, def := range tests {
		if err := ValidateFunction(def); !IsRejected(err) {
			t.Errorf("ValidateFunction(%q) = %v, want rejection", def.Name, err)
		}
	}
}

func TestLoadFunctionsDuplicateKeepsFirst(t *testing.T) {
	fs, errs := LoadFunctions([]models.CustomFunction{
		{Name: "double", Parameters: []string{"x"}, Body: "result = x * 2"},
		{Name: "double", Parameters: []string{"x"}, Body: "result = x * 3"},
	})
	if len(errs) != 1 || !IsRejected(errs[0]) {
		t.Fatalf("errs = %v, want one rejection for the duplicate", errs)
	}
	if fs.Rejection("double") != nil {
		t.Errorf("Rejection(double) = %v, want nil", fs.Rejection("double"))
	}
	if v, err := fs.Call("double", []float64{4}); err != nil || v != 8 {
		t.Errorf("double(4) = %v, %v; want 8", v, err)
	}
}
