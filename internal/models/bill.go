package models

// Bill rolls up billable totals of several scope records.
type Bill struct {
	// ID is the unique identifier for the bill (UUID format).
	ID string `json:"id"`

	// Title is the human-readable name for the bill.
	Title string `json:"title"`

	// ScopeIDs are the scope records included in the bill.
	ScopeIDs []string `json:"scope_ids"`

	// AutoUpdate refreshes the bill whenever one of its scopes is recalculated.
	AutoUpdate bool `json:"auto_update,omitempty"`

	// Totals holds the summed billable totals, keyed by scope type then total name.
	Totals map[string]map[string]float64 `json:"totals,omitempty"`

	// CreatedAt is the Unix timestamp when the bill was created.
	CreatedAt int64 `json:"created_at"`
}

// BillableItem is an item row reduced to its billable fields.
type BillableItem struct {
	ItemName string `json:"item_name"`
	Values   Values `json:"data"`
}

// BillableScope is the billing view of one scope record: only fields, totals and
// constants flagged in_bill are present.
type BillableScope struct {
	ScopeID   string                  `json:"scope_id"`
	ScopeType string                  `json:"scope_type"`
	Items     map[string]BillableItem `json:"items"` // keyed by row ID
	Totals    map[string]float64      `json:"totals"`
	Constants map[string]float64      `json:"constants"`
}
