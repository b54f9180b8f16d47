package service

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmynk/scopewise/internal/metrics"
	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
	"github.com/mmynk/scopewise/internal/storage/sqlite"
)

// slowStore delays selected writes once armed, to force an interleaving of
// concurrent recalculations.
type slowStore struct {
	storage.Store

	armed      atomic.Bool
	slowScope  string
	scopeDelay time.Duration
	billDelay  time.Duration
	billWrites atomic.Int32
}

func (s *slowStore) UpdateScope(ctx context.Context, rec *models.ScopeRecord) error {
	if s.armed.Load() && rec.ID == s.slowScope {
		time.Sleep(s.scopeDelay)
	}
	return s.Store.UpdateScope(ctx, rec)
}

func (s *slowStore) UpdateBill(ctx context.Context, bill *models.Bill) error {
	if s.armed.Load() && s.billWrites.Add(1) == 1 {
		time.Sleep(s.billDelay)
	}
	return s.Store.UpdateBill(ctx, bill)
}

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecalculateAllKeepsSharedBillCurrent(t *testing.T) {
	ctx := context.Background()
	store := &slowStore{
		Store:      newSQLiteStore(t),
		scopeDelay: 100 * time.Millisecond,
		billDelay:  300 * time.Millisecond,
	}

	st := glazing()
	if err := store.PutScopeType(ctx, &st); err != nil {
		t.Fatalf("PutScopeType failed: %v", err)
	}
	var ids []string
	for _, name := range []string{"Ground floor", "First floor"} {
		rec := &models.ScopeRecord{Name: name, ScopeType: "Glazing", Items: glazingItems()}
		if err := store.CreateScope(ctx, rec); err != nil {
			t.Fatalf("CreateScope failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	bill := &models.Bill{Title: "Tower", ScopeIDs: ids, AutoUpdate: true}
	if err := store.CreateBill(ctx, bill); err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}

	engine, err := NewEngine(store, metrics.New(nil), EngineOptions{Workers: 2})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	store.slowScope = ids[1]
	store.armed.Store(true)
	for _, out := range engine.RecalculateAll(ctx, ids) {
		if out.Err != nil {
			t.Fatalf("Recalculate(%s) failed: %v", out.ScopeID, out.Err)
		}
	}

	got, err := store.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	want, err := engine.Rollup(ctx, ids)
	if err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}
	for name, total := range want["Glazing"] {
		if !approx(got.Totals["Glazing"][name], total) {
			t.Errorf("stored %s = %v, want %v", name, got.Totals["Glazing"][name], total)
		}
	}
	if !approx(want["Glazing"]["subtotal"], 70) {
		t.Errorf("fresh subtotal = %v, want 70", want["Glazing"]["subtotal"])
	}
}

func TestLockBillReleasesEntries(t *testing.T) {
	engine, err := NewEngine(newSQLiteStore(t), metrics.New(nil), EngineOptions{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	unlock := engine.lockBill("b1")
	acquired := make(chan struct{})
	go func() {
		release := engine.lockBill("b1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired

	// The entry is dropped after release; give the goroutine time to finish.
	deadline := time.Now().Add(time.Second)
	for {
		engine.billMu.Lock()
		n := len(engine.bills)
		engine.billMu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d bill locks left after release", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
