// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: pragmas are per connection and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateBill persists a new bill with its scope list.
func (s *SQLiteStore) CreateBill(ctx context.Context, bill *models.Bill) error {
	// Generate ID if not set
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.CreatedAt == 0 {
		bill.CreatedAt = time.Now().Unix()
	}
	if bill.Title == "" {
		bill.Title = generateTitle(len(bill.ScopeIDs), time.Unix(bill.CreatedAt, 0))
	}

	totals, err := json.Marshal(nonNilTotals(bill.Totals))
	if err != nil {
		return fmt.Errorf("failed to encode bill totals: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO bills (id, title, auto_update, totals, created_at) VALUES (?, ?, ?, ?, ?)",
		bill.ID, bill.Title, bill.AutoUpdate, string(totals), bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}

	// Insert scope links in order
	for i, scopeID := range bill.ScopeIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO bill_scopes (bill_id, scope_id, position) VALUES (?, ?, ?)",
			bill.ID, scopeID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bill scope %s: %w", scopeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetBill retrieves a bill by ID, including its scope list.
func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	bill := &models.Bill{}
	var totals string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, auto_update, totals, created_at FROM bills WHERE id = ?",
		billID,
	).Scan(&bill.ID, &bill.Title, &bill.AutoUpdate, &totals, &bill.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", billID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	if err := json.Unmarshal([]byte(totals), &bill.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode bill totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT scope_id FROM bill_scopes WHERE bill_id = ? ORDER BY position",
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get bill scopes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scopeID string
		if err := rows.Scan(&scopeID); err != nil {
			return nil, fmt.Errorf("failed to scan bill scope: %w", err)
		}
		bill.ScopeIDs = append(bill.ScopeIDs, scopeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bill scopes: %w", err)
	}

	return bill, nil
}

// UpdateBill stores new totals for an existing bill.
func (s *SQLiteStore) UpdateBill(ctx context.Context, bill *models.Bill) error {
	totals, err := json.Marshal(nonNilTotals(bill.Totals))
	if err != nil {
		return fmt.Errorf("failed to encode bill totals: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE bills SET title = ?, auto_update = ?, totals = ? WHERE id = ?",
		bill.Title, bill.AutoUpdate, string(totals), bill.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bill %s: %w", bill.ID, storage.ErrNotFound)
	}
	return nil
}

// ListBillsByScope retrieves every bill that includes scopeID.
func (s *SQLiteStore) ListBillsByScope(ctx context.Context, scopeID string) ([]*models.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id FROM bills b
		 JOIN bill_scopes bs ON bs.bill_id = b.id
		 WHERE bs.scope_id = ?
		 ORDER BY b.created_at, b.id`,
		scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bill id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}

	// Load after the cursor is closed; the pool holds a single connection.
	bills := make([]*models.Bill, 0, len(ids))
	for _, id := range ids {
		bill, err := s.GetBill(ctx, id)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, nil
}

func nonNilTotals(t map[string]map[string]float64) map[string]map[string]float64 {
	if t == nil {
		return map[string]map[string]float64{}
	}
	return t
}

// generateTitle creates an auto-generated title from the scope count.
func generateTitle(scopes int, created time.Time) string {
	date := created.Format("Jan 2, 2006")
	switch scopes {
	case 0:
		return fmt.Sprintf("Bill - %s", date)
	case 1:
		return fmt.Sprintf("Bill for 1 scope - %s", date)
	default:
		return fmt.Sprintf("Bill for %d scopes - %s", scopes, date)
	}
}
