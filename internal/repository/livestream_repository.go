package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/crate-auction/internal/model"
)

// LivestreamRepo stores broadcasts.  Operators register them and flip
// liveness; the auction locks them to serialise session creation.
type LivestreamRepo struct {
	db *sql.DB
}

// NewLivestreamRepo returns a LivestreamRepo bound to the given database.
func NewLivestreamRepo(db *sql.DB) *LivestreamRepo { return &LivestreamRepo{db: db} }

// ClaimTx locks the livestream row for the remainder of tx, so two
// concurrent openBidding calls for the same broadcast run one after the
// other.  Returns ErrNotFound for an unknown broadcast.
func (r *LivestreamRepo) ClaimTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE livestreams SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches a broadcast by id.
func (r *LivestreamRepo) Get(ctx context.Context, id uint64) (*model.Livestream, error) {
	var (
		l       model.Livestream
		started sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, title, is_live, started_at FROM livestreams WHERE id = ?`, id).
		Scan(&l.ID, &l.Title, &l.IsLive, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.StartedAt = intPtr(started)
	return &l, nil
}

// Create inserts a broadcast and populates its ID.
func (r *LivestreamRepo) Create(ctx context.Context, l *model.Livestream) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO livestreams (title, is_live, started_at) VALUES (?, ?, ?)`,
		l.Title, l.IsLive, nullableInt(l.StartedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// SetLive marks a broadcast live (recording when it started) or offline.
// The version bump keeps MySQL reporting the row as affected when
// nothing else changes.
func (r *LivestreamRepo) SetLive(ctx context.Context, id uint64, live bool, startedAt *int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE livestreams SET is_live = ?, started_at = ?, version = version + 1 WHERE id = ?`,
		live, nullableInt(startedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLiveWithoutSession returns live broadcasts that have no open or
// payment_pending session.
func (r *LivestreamRepo) ListLiveWithoutSession(ctx context.Context, limit int) ([]model.Livestream, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT l.id, l.title, l.is_live, l.started_at
        FROM livestreams l
        WHERE l.is_live = 1
          AND NOT EXISTS (SELECT 1 FROM bidding_sessions s WHERE s.active_livestream_id = l.id)
        ORDER BY l.id LIMIT ?`, clampLimit(limit, 100, 1000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Livestream
	for rows.Next() {
		var (
			l       model.Livestream
			started sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.IsLive, &started); err != nil {
			return nil, err
		}
		l.StartedAt = intPtr(started)
		out = append(out, l)
	}
	return out, rows.Err()
}
