package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/crate-auction/internal/model"
)

// BidRepo persists bids.  Status changes are conditional on the status
// the caller observed, so a stale transition fails with ErrConflict
// instead of overwriting a newer state.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a BidRepo bound to the given database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

const bidColumns = `id, session_id, bidder_id, amount, status, created_at`

func scanBid(row rowScanner) (*model.Bid, error) {
	var (
		b      model.Bid
		status string
	)
	if err := row.Scan(&b.ID, &b.SessionID, &b.BidderID, &b.Amount, &status, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Status = model.BidStatus(status)
	return &b, nil
}

func (r *BidRepo) oneTx(ctx context.Context, tx *sql.Tx, sessionID uint64, statuses ...model.BidStatus) (*model.Bid, error) {
	q := `SELECT ` + bidColumns + ` FROM bids WHERE session_id = ? AND status IN (?`
	args := []any{sessionID, string(statuses[0])}
	for _, s := range statuses[1:] {
		q += ", ?"
		args = append(args, string(s))
	}
	q += `) ORDER BY id DESC LIMIT 1`
	return scanBid(tx.QueryRowContext(ctx, q, args...))
}

// ActiveTx returns the standing bid of a session, or ErrNotFound.
func (r *BidRepo) ActiveTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (*model.Bid, error) {
	return r.oneTx(ctx, tx, sessionID, model.BidActive)
}

// WonTx returns the winning bid of a session, or ErrNotFound.
func (r *BidRepo) WonTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (*model.Bid, error) {
	return r.oneTx(ctx, tx, sessionID, model.BidWon)
}

// CurrentTx returns the active-or-won bid shown to viewers.
func (r *BidRepo) CurrentTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (*model.Bid, error) {
	return r.oneTx(ctx, tx, sessionID, model.BidActive, model.BidWon)
}

// UnsettledTx lists the bids of a session that have not reached a
// terminal state (active, outbid or won).
func (r *BidRepo) UnsettledTx(ctx context.Context, tx *sql.Tx, sessionID uint64) ([]model.Bid, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+bidColumns+` FROM bids
        WHERE session_id = ? AND status IN (?, ?, ?) ORDER BY id`,
		sessionID, string(model.BidActive), string(model.BidOutbid), string(model.BidWon))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// InsertTx stores a new bid and populates its ID.
func (r *BidRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Bid) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bids (session_id, bidder_id, amount, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.SessionID, b.BidderID, b.Amount, string(b.Status), b.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// SetStatusTx moves a bid from one status to another.  ErrConflict means
// the bid was no longer in the from status.
func (r *BidRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.BidStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
