package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/comalice/anchorflow/spatial"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the anchor object record in a SQLite database. Whole
// record replacement happens inside one transaction.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrationFiles, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Exists reports whether a record has been saved.
func (s *SQLiteStore) Exists(ctx context.Context) bool {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM anchor_record`).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// Save replaces the record with positions.
func (s *SQLiteStore) Save(ctx context.Context, positions []spatial.Vec3) error {
	for i, p := range positions {
		if !p.IsFinite() {
			return fmt.Errorf("%w: position %d %v is not finite", ErrStorageWrite, i, p)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorageWrite, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM anchor_positions`); err != nil {
		return fmt.Errorf("%w: clear positions: %w", ErrStorageWrite, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO anchor_positions (seq, x, y, z) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", ErrStorageWrite, err)
	}
	defer stmt.Close()
	for i, p := range positions {
		if _, err := stmt.ExecContext(ctx, i, p.X, p.Y, p.Z); err != nil {
			return fmt.Errorf("%w: insert position %d: %w", ErrStorageWrite, i, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO anchor_record (id, saved_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("%w: mark record: %w", ErrStorageWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorageWrite, err)
	}
	return nil
}

// Load returns the stored positions in insertion order, or an empty slice
// when nothing was saved.
func (s *SQLiteStore) Load(ctx context.Context) ([]spatial.Vec3, error) {
	if !s.Exists(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []spatial.Vec3{}, nil
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT x, y, z FROM anchor_positions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query positions: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	out := []spatial.Vec3{}
	for rows.Next() {
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&x, &y, &z); err != nil {
			return nil, &FormatError{Line: len(out) + 1, Text: "row", Err: err}
		}
		if !x.Valid || !y.Valid || !z.Valid {
			return nil, &FormatError{Line: len(out) + 1, Text: "row", Err: errors.New("null component")}
		}
		out = append(out, spatial.Vec3{X: x.Float64, Y: y.Float64, Z: z.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan positions: %w", ErrStorageRead, err)
	}
	return out, nil
}

// Delete removes the record. Deleting a missing record is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorageWrite, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM anchor_positions`); err != nil {
		return fmt.Errorf("%w: delete positions: %w", ErrStorageWrite, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM anchor_record`); err != nil {
		return fmt.Errorf("%w: delete record: %w", ErrStorageWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorageWrite, err)
	}
	return nil
}
