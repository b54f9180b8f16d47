package formula

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mmynk/scopewise/internal/models"
)

const resultName = "result"

// Function is a compiled custom function.
type Function struct {
	Name   string
	Params []string
	body   []assignment
}

// CompileFunction turns a stored definition into a Function without running it.
func CompileFunction(def models.CustomFunction) (*Function, error) {
	if !IsIdentifier(def.Name) {
		return nil, fmt.Errorf("%w: invalid function name %q", ErrSyntax, def.Name)
	}
	seen := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		if !IsIdentifier(p) {
			return nil, fmt.Errorf("%w: invalid parameter name %q", ErrSyntax, p)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrSyntax, p)
		}
		seen[p] = true
	}
	body, err := parseBody(def.Body)
	if err != nil {
		return nil, err
	}
	return &Function{Name: def.Name, Params: def.Parameters, body: body}, nil
}

// Call runs the function body with args bound to the parameters.
func (f *Function) Call(args []float64) (float64, error) {
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrSyntax, f.Name, len(f.Params), len(args))
	}
	ev := &evaluator{
		env:       &Env{},
		sandboxed: true,
		locals:    make(map[string]models.Value, len(f.Params)+len(f.body)),
	}
	for i, p := range f.Params {
		ev.locals[p] = models.Float(args[i])
	}
	for _, st := range f.body {
		v, err := ev.eval(st.expr)
		if err != nil {
			return 0, err
		}
		ev.locals[st.target] = v
	}
	res, ok := ev.locals[resultName]
	if !ok {
		return 0, fmt.Errorf("%w: function must set the result variable", ErrUndefined)
	}
	if !res.IsNumeric() {
		return 0, fmt.Errorf("%w: result is %s, not a number", ErrType, res.Kind())
	}
	if err := checkFinite(res); err != nil {
		return 0, err
	}
	return res.Float(), nil
}

// smokeTest calls f once with every parameter set to 1.0.
func (f *Function) smokeTest() error {
	args := make([]float64, len(f.Params))
	for i := range args {
		args[i] = 1.0
	}
	_, err := f.Call(args)
	return err
}

// FunctionSet is the custom functions loaded for one calculation session.
// It is read-only once built and safe for concurrent use.
type FunctionSet struct {
	funcs    map[string]*Function
	rejected map[string]error
}

// LoadFunctions compiles every enabled definition and smoke tests it. Definitions
// that fail are left out of the set; the returned errors (*RejectedFunction) say
// why. A rejected function only becomes fatal when a formula calls it.
func LoadFunctions(defs []models.CustomFunction) (*FunctionSet, []error) {
	fs := &FunctionSet{
		funcs:    make(map[string]*Function),
		rejected: make(map[string]error),
	}
	var errs []error
	for _, def := range defs {
		if def.Disabled {
			continue
		}
		if err := fs.add(def); err != nil {
			rej := &RejectedFunction{Name: def.Name, Err: err}
			// A rejected duplicate must not shadow the definition already loaded.
			if _, loaded := fs.funcs[def.Name]; !loaded {
				fs.rejected[def.Name] = rej
			}
			errs = append(errs, rej)
		}
	}
	return fs, errs
}

func (fs *FunctionSet) add(def models.CustomFunction) error {
	if _, dup := fs.funcs[def.Name]; dup {
		return fmt.Errorf("%w: duplicate function name", ErrSyntax)
	}
	f, err := CompileFunction(def)
	if err != nil {
		return err
	}
	if err := f.smokeTest(); err != nil {
		return fmt.Errorf("test call failed: %w", err)
	}
	fs.funcs[def.Name] = f
	return nil
}

// ValidateFunction compiles and smoke tests def, returning the rejection reason.
func ValidateFunction(def models.CustomFunction) error {
	fs := &FunctionSet{funcs: map[string]*Function{}, rejected: map[string]error{}}
	if err := fs.add(def); err != nil {
		return &RejectedFunction{Name: def.Name, Err: err}
	}
	return nil
}

// Call invokes the named function.
func (fs *FunctionSet) Call(name string, args []float64) (float64, error) {
	if fs == nil {
		return 0, fmt.Errorf("%w: custom.%s", ErrUndefined, name)
	}
	if err, ok := fs.rejected[name]; ok {
		return 0, err
	}
	f, ok := fs.funcs[name]
	if !ok {
		return 0, fmt.Errorf("%w: custom.%s", ErrUndefined, name)
	}
	v, err := f.Call(args)
	if err != nil {
		return 0, fmt.Errorf("custom.%s: %w", name, err)
	}
	return v, nil
}

// Names returns the loaded function names in sorted order.
func (fs *FunctionSet) Names() []string {
	if fs == nil {
		return nil
	}
	names := make([]string, 0, len(fs.funcs))
	for n := range fs.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rejection returns why name was excluded from the set, or nil.
func (fs *FunctionSet) Rejection(name string) error {
	if fs == nil {
		return nil
	}
	return fs.rejected[name]
}

// IsRejected reports whether err stems from a rejected custom function.
func IsRejected(err error) bool {
	return errors.Is(err, ErrFunctionRejected)
}
