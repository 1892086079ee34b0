package tour

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS tours (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		started_at   INTEGER,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS tours_created_at_idx ON tours (created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS tour_stops (
		id         TEXT PRIMARY KEY,
		tour_id    TEXT NOT NULL,
		site_id    TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		address    TEXT NOT NULL DEFAULT '',
		site_type  TEXT NOT NULL DEFAULT '',
		lat        REAL NOT NULL,
		lon        REAL NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'visited', 'to_review', 'skipped')),
		visited_at INTEGER,
		notes      TEXT NOT NULL DEFAULT '',
		stop_order INTEGER NOT NULL,
		UNIQUE (tour_id, site_id),
		FOREIGN KEY (tour_id) REFERENCES tours (id) ON DELETE CASCADE
	);
`

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository is a SQLite implementation of Repository for single-node
// deployments. Timestamps are stored as Unix nanoseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	if _, err := r.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := r.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, sqliteSchemaVersion)
		return err
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > sqliteSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", version, sqliteSchemaVersion)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create stores a tour with its stops.
func (r *SQLiteRepository) Create(ctx context.Context, t *Tour) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tours (id, name, created_at, started_at, completed_at) VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.CreatedAt.UnixNano(), nanos(t.StartedAt), nanos(t.CompletedAt),
		)
		if err != nil {
			return err
		}
		return insertStopsSQLite(ctx, tx, t.ID, t.Stops)
	})
}

func insertStopsSQLite(ctx context.Context, q sqlQuerier, tourID string, stops []Stop) error {
	query := `
		INSERT INTO tour_stops (
			id, tour_id, site_id, name, address, site_type,
			lat, lon, status, visited_at, notes, stop_order
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, s := range stops {
		_, err := q.ExecContext(ctx, query,
			s.ID, tourID, s.SiteID, s.Name, s.Address, s.SiteType,
			s.Position.Lat, s.Position.Lon, s.Status.String(), nanos(s.VisitedAt), s.Notes, s.Order,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: tour_stops.tour_id, tour_stops.site_id") {
				return ErrDuplicateSite
			}
			return err
		}
	}
	return nil
}

// Get retrieves a tour by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Tour, error) {
	return getTourSQLite(ctx, r.db, id)
}

func getTourSQLite(ctx context.Context, q sqlQuerier, id string) (*Tour, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, created_at, started_at, completed_at FROM tours WHERE id = ?`, id,
	)
	t, err := scanTourSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTourNotFound
		}
		return nil, err
	}

	stops, err := loadStopsSQLite(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	t.Stops = stops[id]
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTourSQLite(row rowScanner) (*Tour, error) {
	var t Tour
	var created int64
	var started, completed sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &created, &started, &completed); err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.StartedAt = fromNanos(started)
	t.CompletedAt = fromNanos(completed)
	return &t, nil
}

func loadStopsSQLite(ctx context.Context, q sqlQuerier, tourIDs []string) (map[string][]Stop, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tourIDs)), ",")
	args := make([]any, len(tourIDs))
	for i, id := range tourIDs {
		args[i] = id
	}

	query := `
		SELECT
			id, tour_id, site_id, name, address, site_type,
			lat, lon, status, visited_at, notes, stop_order
		FROM tour_stops
		WHERE tour_id IN (` + placeholders + `)
		ORDER BY tour_id, stop_order
	`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Stop, len(tourIDs))
	for rows.Next() {
		var s Stop
		var status string
		var visited sql.NullInt64
		err := rows.Scan(
			&s.ID, &s.TourID, &s.SiteID, &s.Name, &s.Address, &s.SiteType,
			&s.Position.Lat, &s.Position.Lon, &status, &visited, &s.Notes, &s.Order,
		)
		if err != nil {
			return nil, err
		}
		if s.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		s.VisitedAt = fromNanos(visited)
		out[s.TourID] = append(out[s.TourID], s)
	}

	return out, rows.Err()
}

// List retrieves tours newest first.
func (r *SQLiteRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, name, created_at, started_at, completed_at
		FROM tours
		WHERE ? = '' OR (created_at, id) < (SELECT created_at, id FROM tours WHERE id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Cursor, opts.Cursor, limit+1)
	if err != nil {
		return nil, err
	}

	var tours []*Tour
	var ids []string
	for rows.Next() {
		t, err := scanTourSQLite(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tours = append(tours, t)
		ids = append(ids, t.ID)
	}
	// Release the single connection before querying stops.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		stops, err := loadStopsSQLite(ctx, r.db, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range tours {
			t.Stops = stops[t.ID]
		}
	}

	result := &ListResult{Items: tours}
	if len(tours) > limit {
		result.Items = tours[:limit]
		result.NextCursor = tours[limit-1].ID
	}
	return result, nil
}

// Delete deletes a tour; its stops cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tours WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTourNotFound
	}
	return nil
}

// AppendStops adds stops to a tour.
func (r *SQLiteRepository) AppendStops(ctx context.Context, tourID string, stops []Stop) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tours SET completed_at = NULL WHERE id = ?`, tourID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTourNotFound
		}
		return insertStopsSQLite(ctx, tx, tourID, stops)
	})
}

// ApplyTransition moves one pending stop to a new status.
func (r *SQLiteRepository) ApplyTransition(ctx context.Context, tourID string, update StopUpdate) (*Tour, error) {
	var out *Tour
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tours WHERE id = ?`, tourID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrTourNotFound
		}

		var notes any
		if update.Notes != nil {
			notes = *update.Notes
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tour_stops SET
				status = ?,
				visited_at = COALESCE(?, visited_at),
				notes = COALESCE(?, notes)
			WHERE tour_id = ? AND site_id = ? AND status = 'pending'
		`, update.To.String(), nanos(update.VisitedAt), notes, tourID, update.SiteID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var stops int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tour_stops WHERE tour_id = ? AND site_id = ?`, tourID, update.SiteID,
			).Scan(&stops)
			if err != nil {
				return err
			}
			if stops > 0 {
				return ErrInvalidTransition
			}
			return ErrStopNotFound
		}

		if !update.CompleteAt.IsZero() {
			_, err := tx.ExecContext(ctx, `
				UPDATE tours SET completed_at = ?
				WHERE id = ? AND completed_at IS NULL
				  AND NOT EXISTS (SELECT 1 FROM tour_stops WHERE tour_id = ? AND status = 'pending')
			`, update.CompleteAt.UnixNano(), tourID, tourID)
			if err != nil {
				return err
			}
		}

		out, err = getTourSQLite(ctx, tx, tourID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateOrder assigns order indices by site ID.
func (r *SQLiteRepository) UpdateOrder(ctx context.Context, tourID string, order map[string]int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tour_stops WHERE tour_id = ?`, tourID).Scan(&count); err != nil {
			return err
		}
		if count != len(order) {
			return ErrInvalidOrder
		}

		for siteID, idx := range order {
			res, err := tx.ExecContext(ctx,
				`UPDATE tour_stops SET stop_order = ? WHERE tour_id = ? AND site_id = ?`, idx, tourID, siteID,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrInvalidOrder
			}
		}
		return nil
	})
}

// SetStarted stamps StartedAt once.
func (r *SQLiteRepository) SetStarted(ctx context.Context, tourID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tours SET started_at = ? WHERE id = ? AND started_at IS NULL`, at.UnixNano(), tourID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.existsOr(ctx, tourID, ErrTourAlreadyStarted)
	}
	return nil
}

// SetCompleted stamps CompletedAt unless already set.
func (r *SQLiteRepository) SetCompleted(ctx context.Context, tourID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tours SET completed_at = ? WHERE id = ? AND completed_at IS NULL`, at.UnixNano(), tourID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.existsOr(ctx, tourID, nil)
	}
	return nil
}

func (r *SQLiteRepository) existsOr(ctx context.Context, tourID string, errIfExists error) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tours WHERE id = ?`, tourID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrTourNotFound
	}
	return errIfExists
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
