package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/scopewise/internal/calculator"
	"github.com/mmynk/scopewise/internal/formula"
	"github.com/mmynk/scopewise/internal/storage"
	"github.com/mmynk/scopewise/pkg/api"
)

// ConfigService implements the Connect ConfigService: scope type registries
// and custom function definitions.
type ConfigService struct {
	store  storage.Store
	engine *Engine
}

var _ api.ConfigServiceHandler = (*ConfigService)(nil)

// NewConfigService creates a new ConfigService.
func NewConfigService(store storage.Store, engine *Engine) *ConfigService {
	return &ConfigService{store: store, engine: engine}
}

// PutScopeType validates and stores a scope type. A scope type whose formulas
// do not compile, reference unknown fields or form a cycle is rejected.
func (s *ConfigService) PutScopeType(ctx context.Context, req *connect.Request[api.PutScopeTypeRequest]) (*connect.Response[api.ScopeTypeResponse], error) {
	st := req.Msg.ScopeType
	if err := calculator.ValidateScopeType(&st); err != nil {
		slog.Warn("PutScopeType: invalid scope type", "scope_type", st.Name, "error", err)
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.store.PutScopeType(ctx, &st); err != nil {
		slog.Error("PutScopeType: failed to save", "scope_type", st.Name, "error", err)
		return nil, toConnectError(err)
	}
	s.engine.Forget(st.Name)
	slog.Info("Scope type saved", "scope_type", st.Name, "fields", len(st.Fields), "formulas", len(st.Formulas))

	return connect.NewResponse(&api.ScopeTypeResponse{ScopeType: &st}), nil
}

// GetScopeType returns a stored scope type.
func (s *ConfigService) GetScopeType(ctx context.Context, req *connect.Request[api.GetScopeTypeRequest]) (*connect.Response[api.ScopeTypeResponse], error) {
	if req.Msg.Name == "" {
		return nil, requiredError("name")
	}
	st, err := s.engine.LookupScopeType(ctx, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.ScopeTypeResponse{ScopeType: st}), nil
}

// PutCustomFunction stores a custom function. Enabled functions must compile
// and pass the smoke test first.
func (s *ConfigService) PutCustomFunction(ctx context.Context, req *connect.Request[api.PutCustomFunctionRequest]) (*connect.Response[api.PutCustomFunctionResponse], error) {
	fn := req.Msg.Function
	if fn.Name == "" {
		return nil, requiredError("function_name")
	}
	if !fn.Disabled {
		if err := formula.ValidateFunction(fn); err != nil {
			slog.Warn("PutCustomFunction: rejected", "function", fn.Name, "error", err)
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	if err := s.store.PutCustomFunction(ctx, &fn); err != nil {
		slog.Error("PutCustomFunction: failed to save", "function", fn.Name, "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Custom function saved", "function", fn.Name, "disabled", fn.Disabled)

	return connect.NewResponse(&api.PutCustomFunctionResponse{Function: &fn}), nil
}

// GetEvaluationOrder exposes the planned evaluation order of a scope type,
// with formula text and dependencies, so formulas can be reproduced outside
// the engine.
func (s *ConfigService) GetEvaluationOrder(ctx context.Context, req *connect.Request[api.GetEvaluationOrderRequest]) (*connect.Response[api.GetEvaluationOrderResponse], error) {
	if req.Msg.ScopeType == "" {
		return nil, requiredError("scope_type")
	}
	plan, err := s.engine.Plan(ctx, req.Msg.ScopeType)
	if err != nil {
		return nil, toConnectError(err)
	}

	order := plan.Order()
	steps := make([]api.EvaluationStep, len(order))
	for i, step := range order {
		steps[i] = api.EvaluationStep{
			Name:      step.Name,
			Label:     step.Label,
			Formula:   step.Formula,
			Partition: string(step.Partition),
			Aggregate: step.Aggregate,
			DependsOn: step.DependsOn,
			Totals:    step.Totals,
		}
	}
	return connect.NewResponse(&api.GetEvaluationOrderResponse{Steps: steps}), nil
}
