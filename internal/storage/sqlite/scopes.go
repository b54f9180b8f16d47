package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
)

// CreateScope persists a new scope record with its items.
func (s *SQLiteStore) CreateScope(ctx context.Context, rec *models.ScopeRecord) error {
	// Generate ID if not set
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	constants, totals, err := encodeMaps(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scopes (id, name, scope_type, constants, totals, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.ScopeType, constants, totals, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scope: %w", err)
	}

	if err := insertItems(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetScope retrieves a scope record by ID with its items in order.
func (s *SQLiteStore) GetScope(ctx context.Context, id string) (*models.ScopeRecord, error) {
	rec := &models.ScopeRecord{}
	var constants, totals string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, scope_type, constants, totals, created_at, updated_at
		 FROM scopes WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.ScopeType, &constants, &totals, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scope %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scope: %w", err)
	}
	if err := json.Unmarshal([]byte(constants), &rec.Constants); err != nil {
		return nil, fmt.Errorf("failed to decode constants: %w", err)
	}
	if err := json.Unmarshal([]byte(totals), &rec.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT row_id, item_name, data FROM scope_items WHERE scope_id = ? ORDER BY position",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get scope items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.ItemRecord
		var data string
		if err := rows.Scan(&item.RowID, &item.ItemName, &data); err != nil {
			return nil, fmt.Errorf("failed to scan scope item: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &item.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode item %s: %w", item.RowID, err)
		}
		rec.Items = append(rec.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scope items: %w", err)
	}

	return rec, nil
}

// UpdateScope replaces the name, constants, totals and items of a scope record.
func (s *SQLiteStore) UpdateScope(ctx context.Context, rec *models.ScopeRecord) error {
	rec.UpdatedAt = time.Now().Unix()
	constants, totals, err := encodeMaps(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE scopes SET name = ?, constants = ?, totals = ?, updated_at = ? WHERE id = ?",
		rec.Name, constants, totals, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update scope: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scope %s: %w", rec.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM scope_items WHERE scope_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear scope items: %w", err)
	}
	if err := insertItems(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, rec *models.ScopeRecord) error {
	for i := range rec.Items {
		item := &rec.Items[i]
		if item.RowID == "" {
			item.RowID = uuid.New().String()
		}
		vars := item.Variables
		if vars == nil {
			vars = models.Values{}
		}
		data, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("failed to encode item %s: %w", item.RowID, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO scope_items (scope_id, row_id, position, item_name, data) VALUES (?, ?, ?, ?, ?)",
			rec.ID, item.RowID, i, item.ItemName, string(data),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.RowID, err)
		}
	}
	return nil
}

func encodeMaps(rec *models.ScopeRecord) (string, string, error) {
	constants := rec.Constants
	if constants == nil {
		constants = map[string]float64{}
	}
	totals := rec.Totals
	if totals == nil {
		totals = map[string]float64{}
	}
	c, err := json.Marshal(constants)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode constants: %w", err)
	}
	t, err := json.Marshal(totals)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode totals: %w", err)
	}
	return string(c), string(t), nil
}
