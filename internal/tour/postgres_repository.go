package tour

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tours (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS tours_created_at_idx ON tours (created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS tour_stops (
		id         TEXT PRIMARY KEY,
		tour_id    TEXT NOT NULL REFERENCES tours (id) ON DELETE CASCADE,
		site_id    TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		address    TEXT NOT NULL DEFAULT '',
		site_type  TEXT NOT NULL DEFAULT '',
		lat        DOUBLE PRECISION NOT NULL,
		lon        DOUBLE PRECISION NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'visited', 'to_review', 'skipped')),
		visited_at TIMESTAMPTZ,
		notes      TEXT NOT NULL DEFAULT '',
		stop_order INTEGER NOT NULL,
		UNIQUE (tour_id, site_id)
	)`,
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL tour repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the tour tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate tours: %w", err)
		}
	}
	return nil
}

// Create stores a tour with its stops.
func (r *PostgresRepository) Create(ctx context.Context, t *Tour) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO tours (id, name, created_at, started_at, completed_at) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Name, t.CreatedAt, t.StartedAt, t.CompletedAt,
		)
		if err != nil {
			return err
		}
		return insertStopsPG(ctx, tx, t.ID, t.Stops)
	})
}

func insertStopsPG(ctx context.Context, q pgQuerier, tourID string, stops []Stop) error {
	query := `
		INSERT INTO tour_stops (
			id, tour_id, site_id, name, address, site_type,
			lat, lon, status, visited_at, notes, stop_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, s := range stops {
		_, err := q.Exec(ctx, query,
			s.ID, tourID, s.SiteID, s.Name, s.Address, s.SiteType,
			s.Position.Lat, s.Position.Lon, s.Status.String(), s.VisitedAt, s.Notes, s.Order,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateSite
			}
			return err
		}
	}
	return nil
}

// Get retrieves a tour by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Tour, error) {
	return getTourPG(ctx, r.pool, id)
}

func getTourPG(ctx context.Context, q pgQuerier, id string) (*Tour, error) {
	var t Tour
	err := q.QueryRow(ctx,
		`SELECT id, name, created_at, started_at, completed_at FROM tours WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTourNotFound
		}
		return nil, err
	}

	stops, err := loadStopsPG(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	t.Stops = stops[id]
	return &t, nil
}

func loadStopsPG(ctx context.Context, q pgQuerier, tourIDs []string) (map[string][]Stop, error) {
	query := `
		SELECT
			id, tour_id, site_id, name, address, site_type,
			lat, lon, status, visited_at, notes, stop_order
		FROM tour_stops
		WHERE tour_id = ANY($1)
		ORDER BY tour_id, stop_order
	`

	rows, err := q.Query(ctx, query, tourIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Stop, len(tourIDs))
	for rows.Next() {
		var s Stop
		var status string
		err := rows.Scan(
			&s.ID, &s.TourID, &s.SiteID, &s.Name, &s.Address, &s.SiteType,
			&s.Position.Lat, &s.Position.Lon, &status, &s.VisitedAt, &s.Notes, &s.Order,
		)
		if err != nil {
			return nil, err
		}
		if s.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		out[s.TourID] = append(out[s.TourID], s)
	}

	return out, rows.Err()
}

// List retrieves tours newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := `
		SELECT id, name, created_at, started_at, completed_at
		FROM tours
		WHERE $1 = '' OR (created_at, id) < (SELECT created_at, id FROM tours WHERE id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.Cursor, fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tours []*Tour
	var ids []string
	for rows.Next() {
		var t Tour
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		tours = append(tours, &t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		stops, err := loadStopsPG(ctx, r.pool, ids)
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
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tours WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTourNotFound
	}
	return nil
}

// AppendStops adds stops to a tour.
func (r *PostgresRepository) AppendStops(ctx context.Context, tourID string, stops []Stop) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE tours SET completed_at = NULL WHERE id = $1`, tourID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTourNotFound
		}
		return insertStopsPG(ctx, tx, tourID, stops)
	})
}

// ApplyTransition moves one pending stop to a new status.
func (r *PostgresRepository) ApplyTransition(ctx context.Context, tourID string, update StopUpdate) (*Tour, error) {
	var out *Tour
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM tours WHERE id = $1 FOR UPDATE`, tourID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTourNotFound
			}
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE tour_stops SET
				status = $3,
				visited_at = COALESCE($4, visited_at),
				notes = COALESCE($5, notes)
			WHERE tour_id = $1 AND site_id = $2 AND status = 'pending'
		`, tourID, update.SiteID, update.To.String(), update.VisitedAt, update.Notes)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM tour_stops WHERE tour_id = $1 AND site_id = $2)`,
				tourID, update.SiteID,
			).Scan(&exists)
			if err != nil {
				return err
			}
			if exists {
				return ErrInvalidTransition
			}
			return ErrStopNotFound
		}

		if !update.CompleteAt.IsZero() {
			_, err := tx.Exec(ctx, `
				UPDATE tours SET completed_at = $2
				WHERE id = $1 AND completed_at IS NULL
				  AND NOT EXISTS (SELECT 1 FROM tour_stops WHERE tour_id = $1 AND status = 'pending')
			`, tourID, update.CompleteAt)
			if err != nil {
				return err
			}
		}

		out, err = getTourPG(ctx, tx, tourID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateOrder assigns order indices by site ID.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, tourID string, order map[string]int) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tour_stops WHERE tour_id = $1`, tourID).Scan(&count); err != nil {
			return err
		}
		if count != len(order) {
			return ErrInvalidOrder
		}

		for siteID, idx := range order {
			tag, err := tx.Exec(ctx,
				`UPDATE tour_stops SET stop_order = $3 WHERE tour_id = $1 AND site_id = $2`,
				tourID, siteID, idx,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrInvalidOrder
			}
		}
		return nil
	})
}

// SetStarted stamps StartedAt once.
func (r *PostgresRepository) SetStarted(ctx context.Context, tourID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tours SET started_at = $2 WHERE id = $1 AND started_at IS NULL`, tourID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, tourID, ErrTourAlreadyStarted)
	}
	return nil
}

// SetCompleted stamps CompletedAt unless already set.
func (r *PostgresRepository) SetCompleted(ctx context.Context, tourID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tours SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`, tourID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, tourID, nil)
	}
	return nil
}

// existsOr returns ErrTourNotFound when the tour is missing and errIfExists
// otherwise.
func (r *PostgresRepository) existsOr(ctx context.Context, tourID string, errIfExists error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tours WHERE id = $1)`, tourID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTourNotFound
	}
	return errIfExists
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
