// Package formula implements the sandboxed formula language used by scope types:
// a lexer and parser producing an AST, static reference extraction, a tree-walking
// evaluator over item variables, document totals and constants, collection
// aggregates, filtered reductions, and user-defined numeric functions.
//
// Formulas never reach the host environment. The only names a formula can see are
// the ones passed in through Env.
package formula

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax              = errors.New("syntax error")
	ErrUndefined           = errors.New("undefined reference")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrType                = errors.New("type mismatch")
	ErrNonFinite           = errors.New("non-finite result")
	ErrFunctionRejected    = errors.New("custom function rejected")
)

// EvaluationError reports a formula that failed to compile or evaluate.
type EvaluationError struct {
	Formula string
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("formula %q: %v", e.Formula, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// RejectedFunction reports a custom function excluded from a FunctionSet.
type RejectedFunction struct {
	Name string
	Err  error
}

func (e *RejectedFunction) Error() string {
	return fmt.Sprintf("custom function %q rejected: %v", e.Name, e.Err)
}

func (e *RejectedFunction) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFunctionRejected) match.
func (e *RejectedFunction) Is(target error) bool { return target == ErrFunctionRejected }
