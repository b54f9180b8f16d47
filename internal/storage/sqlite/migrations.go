package sqlite

import "database/sql"

// schema sets up the database. It runs on startup to ensure tables exist.
// Scope types and item rows are stored as JSON payloads because their fields
// are user-configurable.
const schema = `
CREATE TABLE IF NOT EXISTS scope_types (
    name TEXT PRIMARY KEY,
    definition TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS custom_functions (
    name TEXT PRIMARY KEY,
    parameters TEXT NOT NULL,
    body TEXT NOT NULL,
    disabled INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    scope_type TEXT NOT NULL,
    constants TEXT NOT NULL DEFAULT '{}',
    totals TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (scope_type) REFERENCES scope_types(name)
);

CREATE TABLE IF NOT EXISTS scope_items (
    scope_id TEXT NOT NULL,
    row_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    item_name TEXT NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (scope_id, row_id),
    FOREIGN KEY (scope_id) REFERENCES scopes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    auto_update INTEGER NOT NULL DEFAULT 0,
    totals TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bill_scopes (
    bill_id TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (bill_id, scope_id),
    FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE,
    FOREIGN KEY (scope_id) REFERENCES scopes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_scopes_scope_type ON scopes(scope_type);
CREATE INDEX IF NOT EXISTS idx_scope_items_scope_id ON scope_items(scope_id);
CREATE INDEX IF NOT EXISTS idx_bill_scopes_scope_id ON bill_scopes(scope_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
