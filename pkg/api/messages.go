package api

import "github.com/mmynk/scopewise/internal/models"

// CalculateRequest runs the engine without touching stored scopes.
type CalculateRequest struct {
	ScopeType string              `json:"scope_type"`
	Items     []models.ItemRecord `json:"items"`
	Constants map[string]float64  `json:"constants,omitempty"`
}

type CalculateResponse struct {
	Items    []models.ItemRecord `json:"items"`
	Totals   map[string]float64  `json:"totals"`
	State    string              `json:"state"`
	Passes   int                 `json:"passes"`
	Warnings []string            `json:"warnings,omitempty"`
}

type CreateScopeRequest struct {
	Name      string              `json:"name"`
	ScopeType string              `json:"scope_type"`
	Items     []models.ItemRecord `json:"items,omitempty"`
	Constants map[string]float64  `json:"constants,omitempty"`
}

// ScopeResponse carries a stored scope after a write or a recalculation.
type ScopeResponse struct {
	Scope    *models.ScopeRecord `json:"scope"`
	State    string              `json:"state,omitempty"`
	Passes   int                 `json:"passes,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

type GetScopeRequest struct {
	ScopeID string `json:"scope_id"`
}

// SaveItemRequest inserts the item, or replaces the item with the same row_id.
type SaveItemRequest struct {
	ScopeID string            `json:"scope_id"`
	Item    models.ItemRecord `json:"item"`
}

type SaveItemResponse struct {
	ScopeResponse
	RowID string `json:"row_id"`
}

type DeleteItemRequest struct {
	ScopeID string `json:"scope_id"`
	RowID   string `json:"row_id"`
}

type RecalculateRequest struct {
	ScopeID string `json:"scope_id"`
}

type RecalculateAllRequest struct {
	ScopeIDs []string `json:"scope_ids"`
}

// RecalculateResult is the outcome for one scope of a bulk recalculation.
type RecalculateResult struct {
	ScopeID  string   `json:"scope_id"`
	State    string   `json:"state,omitempty"`
	Passes   int      `json:"passes,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type RecalculateAllResponse struct {
	Results []RecalculateResult `json:"results"`
}

type PutScopeTypeRequest struct {
	ScopeType models.ScopeType `json:"scope_type"`
}

type ScopeTypeResponse struct {
	ScopeType *models.ScopeType `json:"scope_type"`
}

type GetScopeTypeRequest struct {
	Name string `json:"name"`
}

type PutCustomFunctionRequest struct {
	Function models.CustomFunction `json:"function"`
}

type PutCustomFunctionResponse struct {
	Function *models.CustomFunction `json:"function"`
}

type GetEvaluationOrderRequest struct {
	ScopeType string `json:"scope_type"`
}

// EvaluationStep is one formula evaluation in engine order.
type EvaluationStep struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Formula   string   `json:"formula"`
	Partition string   `json:"partition,omitempty"`
	Aggregate bool     `json:"aggregate,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	Totals    []string `json:"doc_totals,omitempty"`
}

type GetEvaluationOrderResponse struct {
	Steps []EvaluationStep `json:"steps"`
}

type CreateBillRequest struct {
	Title      string   `json:"title,omitempty"`
	ScopeIDs   []string `json:"scope_ids"`
	AutoUpdate bool     `json:"auto_update,omitempty"`
}

// BillResponse carries a bill and, per total name, its sum across scope types.
type BillResponse struct {
	Bill        *models.Bill       `json:"bill"`
	GrandTotals map[string]float64 `json:"grand_totals,omitempty"`
}

type GetBillRequest struct {
	BillID string `json:"bill_id"`
}

type RefreshBillRequest struct {
	BillID string `json:"bill_id"`
}

type GetBillableScopeRequest struct {
	ScopeID string `json:"scope_id"`
}

type GetBillableScopeResponse struct {
	Scope models.BillableScope `json:"scope"`
}
