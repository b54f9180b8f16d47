package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/scopewise/internal/calculator"
	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
	"github.com/mmynk/scopewise/pkg/api"
)

// BillService implements the Connect BillService.
type BillService struct {
	store  storage.Store
	engine *Engine
}

var _ api.BillServiceHandler = (*BillService)(nil)

// NewBillService creates a new BillService.
func NewBillService(store storage.Store, engine *Engine) *BillService {
	return &BillService{store: store, engine: engine}
}

func billResponse(bill *models.Bill) *api.BillResponse {
	grand := make(map[string]float64)
	for _, totals := range bill.Totals {
		for name := range totals {
			if _, done := grand[name]; !done {
				grand[name] = calculator.GrandTotal(bill.Totals, name)
			}
		}
	}
	return &api.BillResponse{Bill: bill, GrandTotals: grand}
}

// CreateBill rolls up the billable totals of the given scope records and
// stores the bill.
func (s *BillService) CreateBill(ctx context.Context, req *connect.Request[api.CreateBillRequest]) (*connect.Response[api.BillResponse], error) {
	if len(req.Msg.ScopeIDs) == 0 {
		return nil, requiredError("scope_ids")
	}

	totals, err := s.engine.Rollup(ctx, req.Msg.ScopeIDs)
	if err != nil {
		slog.Error("CreateBill: rollup failed", "error", err)
		return nil, toConnectError(err)
	}

	bill := &models.Bill{
		Title:      req.Msg.Title,
		ScopeIDs:   req.Msg.ScopeIDs,
		AutoUpdate: req.Msg.AutoUpdate,
		Totals:     totals,
	}
	if err := s.store.CreateBill(ctx, bill); err != nil {
		slog.Error("CreateBill: failed to save", "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Bill created", "bill_id", bill.ID, "scopes", len(bill.ScopeIDs), "auto_update", bill.AutoUpdate)

	return connect.NewResponse(billResponse(bill)), nil
}

// GetBill returns a stored bill.
func (s *BillService) GetBill(ctx context.Context, req *connect.Request[api.GetBillRequest]) (*connect.Response[api.BillResponse], error) {
	if req.Msg.BillID == "" {
		return nil, requiredError("bill_id")
	}
	bill, err := s.store.GetBill(ctx, req.Msg.BillID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(billResponse(bill)), nil
}

// RefreshBill recomputes the totals of a stored bill from the current scope
// records.
func (s *BillService) RefreshBill(ctx context.Context, req *connect.Request[api.RefreshBillRequest]) (*connect.Response[api.BillResponse], error) {
	if req.Msg.BillID == "" {
		return nil, requiredError("bill_id")
	}
	bill, err := s.store.GetBill(ctx, req.Msg.BillID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.engine.RefreshBill(ctx, bill); err != nil {
		slog.Error("RefreshBill failed", "bill_id", bill.ID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(billResponse(bill)), nil
}

// GetBillableScope returns the billing view of one scope record.
func (s *BillService) GetBillableScope(ctx context.Context, req *connect.Request[api.GetBillableScopeRequest]) (*connect.Response[api.GetBillableScopeResponse], error) {
	if req.Msg.ScopeID == "" {
		return nil, requiredError("scope_id")
	}
	view, err := s.engine.BillableScope(ctx, req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetBillableScopeResponse{Scope: view}), nil
}
