package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/scopewise/internal/models"
	"github.com/mmynk/scopewise/internal/storage"
)

// PutScopeType inserts or replaces a scope type definition.
func (s *SQLiteStore) PutScopeType(ctx context.Context, st *models.ScopeType) error {
	st.UpdatedAt = time.Now().Unix()
	def, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode scope type: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scope_types (name, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		st.Name, string(def), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scope type: %w", err)
	}
	return nil
}

// GetScopeType retrieves a scope type by name.
func (s *SQLiteStore) GetScopeType(ctx context.Context, name string) (*models.ScopeType, error) {
	var def string
	err := s.db.QueryRowContext(ctx,
		"SELECT definition FROM scope_types WHERE name = ?",
		name,
	).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scope type %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scope type: %w", err)
	}

	st := &models.ScopeType{}
	if err := json.Unmarshal([]byte(def), st); err != nil {
		return nil, fmt.Errorf("failed to decode scope type %q: %w", name, err)
	}
	return st, nil
}

// PutCustomFunction inserts or replaces a custom function.
func (s *SQLiteStore) PutCustomFunction(ctx context.Context, fn *models.CustomFunction) error {
	fn.UpdatedAt = time.Now().Unix()
	params, err := json.Marshal(fn.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custom_functions (name, parameters, body, disabled, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET parameters = excluded.parameters, body = excluded.body,
		     disabled = excluded.disabled, updated_at = excluded.updated_at`,
		fn.Name, string(params), fn.Body, fn.Disabled, fn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save custom function: %w", err)
	}
	return nil
}

// ListCustomFunctions retrieves all custom functions ordered by name.
func (s *SQLiteStore) ListCustomFunctions(ctx context.Context) ([]models.CustomFunction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, parameters, body, disabled, updated_at FROM custom_functions ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom functions: %w", err)
	}
	defer rows.Close()

	var fns []models.CustomFunction
	for rows.Next() {
		var fn models.CustomFunction
		var params string
		if err := rows.Scan(&fn.Name, &params, &fn.Body, &fn.Disabled, &fn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan custom function: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &fn.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters of %q: %w", fn.Name, err)
		}
		fns = append(fns, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custom functions: %w", err)
	}

	return fns, nil
}
