// Package store persists unit fingerprints in SQLite so the index can
// be rebuilt across runs. Replay order matters: LoadAll returns records
// in insertion order.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mimiclab/mimic/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS units (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	file           TEXT NOT NULL,
	start_line     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	language       TEXT NOT NULL,
	source         TEXT NOT NULL,
	fp_bits        INTEGER NOT NULL,
	fp_width       INTEGER NOT NULL,
	created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_units_file ON units(file);
`

// Store is a SQLite-backed fingerprint store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applying the schema and
// WAL mode for concurrent readers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure store: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save upserts a unit and its fingerprint. Fingerprint bits are stored
// as a signed int64; the cast round-trips exactly.
func (s *Store) Save(ctx context.Context, unit models.CodeUnit, fp models.Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (id, kind, name, qualified_name, file, start_line, end_line, language, source, fp_bits, fp_width)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fp_bits = excluded.fp_bits,
			fp_width = excluded.fp_width,
			source = excluded.source`,
		unit.ID, string(unit.Kind), unit.Name, unit.QualifiedName, unit.File,
		unit.StartLine, unit.EndLine, unit.Language, unit.Source,
		int64(fp.Bits), fp.Width,
	)
	if err != nil {
		return fmt.Errorf("failed to save unit %s: %w", unit.ID, err)
	}
	return nil
}

// LoadAll returns every stored record in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]models.PersistedUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, qualified_name, file, start_line, end_line, language, source, fp_bits, fp_width
		FROM units ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	defer rows.Close()

	var records []models.PersistedUnit
	for rows.Next() {
		var (
			u    models.CodeUnit
			kind string
			bits int64
			w    int
		)
		if err := rows.Scan(&u.ID, &kind, &u.Name, &u.QualifiedName, &u.File,
			&u.StartLine, &u.EndLine, &u.Language, &u.Source, &bits, &w); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		u.Kind = models.UnitKind(kind)
		records = append(records, models.PersistedUnit{
			Unit:        u,
			Fingerprint: models.Fingerprint{UnitID: u.ID, Bits: uint64(bits), Width: w},
		})
	}
	return records, rows.Err()
}

// Delete removes a unit's record. Missing IDs are not an error.
func (s *Store) Delete(ctx context.Context, unitID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, unitID)
	if err != nil {
		return fmt.Errorf("failed to delete unit %s: %w", unitID, err)
	}
	return nil
}

// Count returns the number of stored units.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
