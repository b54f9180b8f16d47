package service

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/scopewise/internal/calculator"
	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/storage"
)

// toConnectError maps engine and storage errors onto Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}
	return connect.NewError(codeOf(err), err)
}

func codeOf(err error) connect.Code {
	var (
		calcErr   *calculator.CalculationFailedError
		cycle     *calculator.CyclicDependencyError
		mandatory *calculator.MissingMandatoryError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, calculator.ErrConfigNotFound):
		return connect.CodeNotFound
	case errors.As(err, &mandatory), errors.As(err, &cycle):
		return connect.CodeInvalidArgument
	case errors.As(err, &calcErr):
		return connect.CodeFailedPrecondition
	case errors.Is(err, calculator.ErrInvalidScopeType),
		errors.Is(err, calculator.ErrInvalidFieldName),
		errors.Is(err, calculator.ErrDuplicateFieldName),
		errors.Is(err, calculator.ErrUnknownField),
		formula.IsRejected(err):
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

func requiredError(field string) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s is required", field))
}
