package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "scopewise-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func glazingType() *models.ScopeType {
	return &models.ScopeType{
		Name: "Glazing",
		Fields: []models.FieldDefinition{
			{Name: "qty", Type: models.FieldInt, DefaultValue: "1", Mandatory: true, InBill: true},
			{Name: "rate", Type: models.FieldCurrency},
			{Name: "amount", Type: models.FieldCurrency, AutoCalculate: true, Formula: "variables['qty'] * variables['rate']"},
		},
		Formulas: []models.AggregateFormula{
			{Name: "total", Label: "Total", Formula: "sum('amount')", InBill: true},
		},
		Constants: []models.ConstantDefinition{{Name: "vat", Value: 5, InBill: true}},
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("scope types round trip", func(t *testing.T) {
		if err := store.PutScopeType(ctx, glazingType()); err != nil {
			t.Fatalf("PutScopeType failed: %v", err)
		}
		got, err := store.GetScopeType(ctx, "Glazing")
		if err != nil {
			t.Fatalf("GetScopeType failed: %v", err)
		}
		if len(got.Fields) != 3 || got.Fields[2].Formula != "variables['qty'] * variables['rate']" {
			t.Errorf("Fields = %+v", got.Fields)
		}
		if !got.Fields[0].Mandatory || !got.Fields[0].InBill || got.Fields[0].DefaultValue != "1" {
			t.Errorf("qty field flags lost: %+v", got.Fields[0])
		}
		if len(got.Formulas) != 1 || got.Formulas[0].Label != "Total" {
			t.Errorf("Formulas = %+v", got.Formulas)
		}
		if got.UpdatedAt == 0 {
			t.Error("Expected UpdatedAt to be set")
		}

		// Replace
		st := glazingType()
		st.Formulas = append(st.Formulas, models.AggregateFormula{Name: "rows", Formula: "count('qty')"})
		if err := store.PutScopeType(ctx, st); err != nil {
			t.Fatalf("PutScopeType (replace) failed: %v", err)
		}
		got, _ = store.GetScopeType(ctx, "Glazing")
		if len(got.Formulas) != 2 {
			t.Errorf("Expected 2 formulas after replace, got %d", len(got.Formulas))
		}
	})

	t.Run("GetScopeType returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetScopeType(ctx, "Nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("custom functions", func(t *testing.T) {
		fns := []*models.CustomFunction{
			{Name: "double", Parameters: []string{"x"}, Body: "result = x * 2"},
			{Name: "area", Parameters: []string{"w", "h"}, Body: "result = w * h", Disabled: true},
		}
		for _, fn := range fns {
			if err := store.PutCustomFunction(ctx, fn); err != nil {
				t.Fatalf("PutCustomFunction failed: %v", err)
			}
		}
		// Replace one
		if err := store.PutCustomFunction(ctx, &models.CustomFunction{Name: "double", Parameters: []string{"y"}, Body: "result = y + y"}); err != nil {
			t.Fatalf("PutCustomFunction (replace) failed: %v", err)
		}

		got, err := store.ListCustomFunctions(ctx)
		if err != nil {
			t.Fatalf("ListCustomFunctions failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 functions, got %d", len(got))
		}
		if got[0].Name != "area" || !got[0].Disabled || len(got[0].Parameters) != 2 {
			t.Errorf("area = %+v", got[0])
		}
		if got[1].Body != "result = y + y" || got[1].Parameters[0] != "y" {
			t.Errorf("double = %+v", got[1])
		}
	})

	var scopeID string

	t.Run("CreateScope generates IDs and keeps item order", func(t *testing.T) {
		rec := &models.ScopeRecord{
			Name:      "Ground floor",
			ScopeType: "Glazing",
			Constants: map[string]float64{"vat": 7.5},
			Items: []models.ItemRecord{
				{ItemName: "W1", Variables: models.Values{"qty": models.Int(2), "rate": models.Float(12.5), "note": models.Text("east")}},
				{ItemName: "W2", Variables: models.Values{"qty": models.Int(1), "rate": models.Float(40), "fixed": models.Bool(true)}},
				{RowID: "keep-me", ItemName: "W3"},
			},
		}
		if err := store.CreateScope(ctx, rec); err != nil {
			t.Fatalf("CreateScope failed: %v", err)
		}
		if rec.ID == "" || rec.CreatedAt == 0 {
			t.Fatal("Expected ID and CreatedAt to be set")
		}
		if rec.Items[0].RowID == "" || rec.Items[2].RowID != "keep-me" {
			t.Errorf("row ids = %q, %q", rec.Items[0].RowID, rec.Items[2].RowID)
		}
		scopeID = rec.ID

		got, err := store.GetScope(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetScope failed: %v", err)
		}
		if got.Name != "Ground floor" || got.Constants["vat"] != 7.5 {
			t.Errorf("scope = %+v", got)
		}
		if len(got.Totals) != 0 {
			t.Errorf("Expected no totals before calculation, got %v", got.Totals)
		}
		if len(got.Items) != 3 {
			t.Fatalf("Expected 3 items, got %d", len(got.Items))
		}
		for i, name := range []string{"W1", "W2", "W3"} {
			if got.Items[i].ItemName != name {
				t.Errorf("item %d = %s, want %s", i, got.Items[i].ItemName, name)
			}
		}
		w1 := got.Items[0].Variables
		if w1["qty"].Kind() != models.KindInt || !w1["rate"].Equal(models.Float(12.5)) || !w1["note"].Equal(models.Text("east")) {
			t.Errorf("W1 payload = %v", w1)
		}
		if !got.Items[1].Variables["fixed"].Equal(models.Bool(true)) {
			t.Errorf("W2 payload = %v", got.Items[1].Variables)
		}
	})

	t.Run("CreateScope rejects unknown scope type", func(t *testing.T) {
		err := store.CreateScope(ctx, &models.ScopeRecord{Name: "x", ScopeType: "Unknown"})
		if err == nil {
			t.Error("Expected foreign key error, got nil")
		}
	})

	t.Run("UpdateScope replaces items and totals", func(t *testing.T) {
		rec, err := store.GetScope(ctx, scopeID)
		if err != nil {
			t.Fatalf("GetScope failed: %v", err)
		}
		rec.Items = rec.Items[1:]
		rec.Items[0].Variables["amount"] = models.Float(40)
		rec.Totals = map[string]float64{"total": 40}
		if err := store.UpdateScope(ctx, rec); err != nil {
			t.Fatalf("UpdateScope failed: %v", err)
		}

		got, _ := store.GetScope(ctx, scopeID)
		if len(got.Items) != 2 || got.Items[1].RowID != "keep-me" {
			t.Errorf("items after update = %+v", got.Items)
		}
		if got.Totals["total"] != 40 {
			t.Errorf("total = %v, want 40", got.Totals["total"])
		}
	})

	t.Run("UpdateScope returns ErrNotFound", func(t *testing.T) {
		err := store.UpdateScope(ctx, &models.ScopeRecord{ID: "missing"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("bills", func(t *testing.T) {
		bill := &models.Bill{ScopeIDs: []string{scopeID}, AutoUpdate: true}
		if err := store.CreateBill(ctx, bill); err != nil {
			t.Fatalf("CreateBill failed: %v", err)
		}
		if bill.ID == "" || !strings.HasPrefix(bill.Title, "Bill for 1 scope") {
			t.Errorf("bill = %+v", bill)
		}

		bill.Totals = map[string]map[string]float64{"Glazing": {"total": 40}}
		if err := store.UpdateBill(ctx, bill); err != nil {
			t.Fatalf("UpdateBill failed: %v", err)
		}

		bills, err := store.ListBillsByScope(ctx, scopeID)
		if err != nil {
			t.Fatalf("ListBillsByScope failed: %v", err)
		}
		if len(bills) != 1 || bills[0].ID != bill.ID {
			t.Fatalf("ListBillsByScope = %+v", bills)
		}
		got := bills[0]
		if !got.AutoUpdate || got.Totals["Glazing"]["total"] != 40 || len(got.ScopeIDs) != 1 {
			t.Errorf("bill = %+v", got)
		}

		if _, err := store.GetBill(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if none, _ := store.ListBillsByScope(ctx, "other"); len(none) != 0 {
			t.Errorf("Expected no bills, got %d", len(none))
		}
	})
}

func TestGenerateTitle(t *testing.T) {
	created := time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		scopes int
		want   string
	}{
		{0, "Bill - Mar 4, 2025"},
		{1, "Bill for 1 scope - Mar 4, 2025"},
		{3, "Bill for 3 scopes - Mar 4, 2025"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := generateTitle(tt.scopes, created); got != tt.want {
				t.Errorf("generateTitle(%d) = %q, want %q", tt.scopes, got, tt.want)
			}
		})
	}
}
