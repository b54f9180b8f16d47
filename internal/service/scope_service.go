package service

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/scopewise/internal/calculator"
	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
	"github.com/mmynk/scopewise/pkg/api"
)

// ScopeService implements the Connect ScopeService.
type ScopeService struct {
	store  storage.Store
	engine *Engine
}

var _ api.ScopeServiceHandler = (*ScopeService)(nil)

// NewScopeService creates a new ScopeService with the given storage backend.
func NewScopeService(store storage.Store, engine *Engine) *ScopeService {
	return &ScopeService{store: store, engine: engine}
}

func warningStrings(res *calculator.Result) []string {
	if len(res.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(res.Warnings))
	for i, w := range res.Warnings {
		out[i] = w.Error()
	}
	return out
}

func scopeResponse(rec *models.ScopeRecord, res *calculator.Result) *api.ScopeResponse {
	resp := &api.ScopeResponse{Scope: rec}
	if res != nil {
		resp.State = res.State.String()
		resp.Passes = res.Passes
		resp.Warnings = warningStrings(res)
	}
	return resp
}

// Calculate runs the engine over the request items without storing anything.
func (s *ScopeService) Calculate(ctx context.Context, req *connect.Request[api.CalculateRequest]) (*connect.Response[api.CalculateResponse], error) {
	if req.Msg.ScopeType == "" {
		return nil, requiredError("scope_type")
	}

	res, err := s.engine.Calculate(ctx, req.Msg.ScopeType, req.Msg.Items, req.Msg.Constants)
	if err != nil {
		slog.Error("Calculate failed", "scope_type", req.Msg.ScopeType, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CalculateResponse{
		Items:    res.Items,
		Totals:   res.Totals,
		State:    res.State.String(),
		Passes:   res.Passes,
		Warnings: warningStrings(res),
	}), nil
}

// CreateScope calculates the initial items and stores a new scope record.
func (s *ScopeService) CreateScope(ctx context.Context, req *connect.Request[api.CreateScopeRequest]) (*connect.Response[api.ScopeResponse], error) {
	if req.Msg.Name == "" {
		return nil, requiredError("name")
	}
	if req.Msg.ScopeType == "" {
		return nil, requiredError("scope_type")
	}

	plan, err := s.engine.Plan(ctx, req.Msg.ScopeType)
	if err != nil {
		return nil, toConnectError(err)
	}
	for _, item := range req.Msg.Items {
		if err := calculator.ValidateMandatory(plan.ScopeType(), item); err != nil {
			return nil, toConnectError(err)
		}
	}

	res, err := s.engine.Calculate(ctx, req.Msg.ScopeType, req.Msg.Items, req.Msg.Constants)
	if err != nil {
		slog.Error("CreateScope: calculation failed", "scope_type", req.Msg.ScopeType, "error", err)
		return nil, toConnectError(err)
	}

	rec := &models.ScopeRecord{
		Name:      req.Msg.Name,
		ScopeType: req.Msg.ScopeType,
		Items:     res.Items,
		Constants: req.Msg.Constants,
		Totals:    res.Totals,
	}
	if err := s.store.CreateScope(ctx, rec); err != nil {
		slog.Error("CreateScope: failed to save", "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Scope created", "scope_id", rec.ID, "scope_type", rec.ScopeType, "items", len(rec.Items))

	return connect.NewResponse(scopeResponse(rec, res)), nil
}

// GetScope returns a stored scope record.
func (s *ScopeService) GetScope(ctx context.Context, req *connect.Request[api.GetScopeRequest]) (*connect.Response[api.ScopeResponse], error) {
	if req.Msg.ScopeID == "" {
		return nil, requiredError("scope_id")
	}
	rec, err := s.store.GetScope(ctx, req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(scopeResponse(rec, nil)), nil
}

// SaveItem inserts an item, or replaces the item with the same row_id, and
// recalculates the scope record.
func (s *ScopeService) SaveItem(ctx context.Context, req *connect.Request[api.SaveItemRequest]) (*connect.Response[api.SaveItemResponse], error) {
	if req.Msg.ScopeID == "" {
		return nil, requiredError("scope_id")
	}
	rec, err := s.store.GetScope(ctx, req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}
	plan, err := s.engine.Plan(ctx, rec.ScopeType)
	if err != nil {
		return nil, toConnectError(err)
	}

	item := req.Msg.Item.Clone()
	if item.RowID == "" {
		item.RowID = uuid.New().String()
	}
	if err := calculator.ValidateMandatory(plan.ScopeType(), item); err != nil {
		return nil, toConnectError(err)
	}

	items := make([]models.ItemRecord, 0, len(rec.Items)+1)
	replaced := false
	for _, it := range rec.Items {
		if it.RowID == item.RowID {
			it = item
			replaced = true
		}
		items = append(items, it)
	}
	if !replaced {
		items = append(items, item)
	}

	res, err := s.engine.commit(ctx, rec, items)
	if err != nil {
		slog.Error("SaveItem failed", "scope_id", rec.ID, "row_id", item.RowID, "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Item saved", "scope_id", rec.ID, "row_id", item.RowID, "replaced", replaced)

	return connect.NewResponse(&api.SaveItemResponse{
		ScopeResponse: *scopeResponse(rec, res),
		RowID:         item.RowID,
	}), nil
}

// DeleteItem removes an item by row_id and recalculates the scope record.
func (s *ScopeService) DeleteItem(ctx context.Context, req *connect.Request[api.DeleteItemRequest]) (*connect.Response[api.ScopeResponse], error) {
	if req.Msg.ScopeID == "" {
		return nil, requiredError("scope_id")
	}
	if req.Msg.RowID == "" {
		return nil, requiredError("row_id")
	}
	rec, err := s.store.GetScope(ctx, req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}

	items := make([]models.ItemRecord, 0, len(rec.Items))
	for _, it := range rec.Items {
		if it.RowID != req.Msg.RowID {
			items = append(items, it)
		}
	}
	if len(items) == len(rec.Items) {
		return nil, toConnectError(fmt.Errorf("item %s: %w", req.Msg.RowID, storage.ErrNotFound))
	}

	res, err := s.engine.commit(ctx, rec, items)
	if err != nil {
		slog.Error("DeleteItem failed", "scope_id", rec.ID, "row_id", req.Msg.RowID, "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Item deleted", "scope_id", rec.ID, "row_id", req.Msg.RowID)

	return connect.NewResponse(scopeResponse(rec, res)), nil
}

// Recalculate recomputes a stored scope record.
func (s *ScopeService) Recalculate(ctx context.Context, req *connect.Request[api.RecalculateRequest]) (*connect.Response[api.ScopeResponse], error) {
	if req.Msg.ScopeID == "" {
		return nil, requiredError("scope_id")
	}
	rec, res, err := s.engine.Recalculate(ctx, req.Msg.ScopeID)
	if err != nil {
		slog.Error("Recalculate failed", "scope_id", req.Msg.ScopeID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(scopeResponse(rec, res)), nil
}

// RecalculateAll recomputes several scope records in parallel. Failures are
// reported per record.
func (s *ScopeService) RecalculateAll(ctx context.Context, req *connect.Request[api.RecalculateAllRequest]) (*connect.Response[api.RecalculateAllResponse], error) {
	if len(req.Msg.ScopeIDs) == 0 {
		return nil, requiredError("scope_ids")
	}

	outcomes := s.engine.RecalculateAll(ctx, req.Msg.ScopeIDs)
	results := make([]api.RecalculateResult, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		r := api.RecalculateResult{ScopeID: o.ScopeID}
		if o.Err != nil {
			r.Error = o.Err.Error()
			failed++
		} else {
			r.State = o.Result.State.String()
			r.Passes = o.Result.Passes
			r.Warnings = warningStrings(o.Result)
		}
		results[i] = r
	}
	slog.Info("Scopes recalculated", "count", len(results), "failed", failed)

	return connect.NewResponse(&api.RecalculateAllResponse{Results: results}), nil
}
