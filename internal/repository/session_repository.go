package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/crate-auction/internal/database"
	"github.com/iliyamo/crate-auction/internal/model"
)

// SessionRepo persists bidding sessions.  Every mutation runs inside a
// caller-owned transaction; the caller must commit or rollback.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, livestream_id, video_timestamp, opened_at, status, bidding_ends_at, payment_deadline, version`

func scanSession(row rowScanner) (*model.BiddingSession, error) {
	var (
		s        model.BiddingSession
		status   string
		endsAt   sql.NullInt64
		deadline sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.LivestreamID, &s.VideoTimestamp, &s.OpenedAt, &status, &endsAt, &deadline, &s.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	s.BiddingEndsAt = intPtr(endsAt)
	s.PaymentDeadline = intPtr(deadline)
	return &s, nil
}

// ClaimTx takes the write lock on a session row by bumping its version.
// Competing transactions on the same session block here until the holder
// commits, so everything read afterwards in tx is current.  Returns
// ErrNotFound when the session does not exist.
func (r *SessionRepo) ClaimTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE bidding_sessions SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTx loads a session inside tx.
func (r *SessionRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BiddingSession, error) {
	return scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM bidding_sessions WHERE id = ?`, id))
}

// ActiveByLivestreamTx returns the open or payment_pending session of a
// broadcast, or ErrNotFound.
func (r *SessionRepo) ActiveByLivestreamTx(ctx context.Context, tx *sql.Tx, livestreamID uint64) (*model.BiddingSession, error) {
	return scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM bidding_sessions WHERE active_livestream_id = ?`, livestreamID))
}

// InsertTx stores a new session and populates its ID.  A second active
// session for the same broadcast violates ux_sessions_active and is
// reported as ErrConflict.
func (r *SessionRepo) InsertTx(ctx context.Context, tx *sql.Tx, s *model.BiddingSession) error {
	const q = `INSERT INTO bidding_sessions
        (livestream_id, video_timestamp, opened_at, status, bidding_ends_at, payment_deadline, active_livestream_id, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	res, err := tx.ExecContext(ctx, q,
		s.LivestreamID, s.VideoTimestamp, s.OpenedAt, string(s.Status),
		nullableInt(s.BiddingEndsAt), nullableInt(s.PaymentDeadline), activeSlot(s))
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// UpdateStateTx writes the mutable fields of a session.  The active slot
// is released as soon as the status becomes terminal.
func (r *SessionRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, s *model.BiddingSession) error {
	const q = `UPDATE bidding_sessions
        SET status = ?, bidding_ends_at = ?, payment_deadline = ?, active_livestream_id = ?
        WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, string(s.Status),
		nullableInt(s.BiddingEndsAt), nullableInt(s.PaymentDeadline), activeSlot(s), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func activeSlot(s *model.BiddingSession) sql.NullInt64 {
	if !s.Status.Active() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(s.LivestreamID), Valid: true}
}

// ListLapsedOpen returns ids of open sessions whose countdown has run out
// at now, oldest deadline first.
func (r *SessionRepo) ListLapsedOpen(ctx context.Context, now int64, limit int) ([]uint64, error) {
	return r.listIDs(ctx, `SELECT id FROM bidding_sessions
        WHERE status = ? AND bidding_ends_at IS NOT NULL AND bidding_ends_at <= ?
        ORDER BY bidding_ends_at LIMIT ?`, string(model.SessionOpen), now, clampLimit(limit, 100, 1000))
}

// ListOverduePayments returns ids of payment_pending sessions whose
// payment deadline has passed.  Sessions without a deadline are never
// returned.
func (r *SessionRepo) ListOverduePayments(ctx context.Context, now int64, limit int) ([]uint64, error) {
	return r.listIDs(ctx, `SELECT id FROM bidding_sessions
        WHERE status = ? AND payment_deadline IS NOT NULL AND payment_deadline <= ?
        ORDER BY payment_deadline LIMIT ?`, string(model.SessionPaymentPending), now, clampLimit(limit, 100, 1000))
}

func (r *SessionRepo) listIDs(ctx context.Context, q string, args ...any) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
