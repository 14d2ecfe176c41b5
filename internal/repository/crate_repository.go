package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/crate-auction/internal/database"
	"github.com/iliyamo/crate-auction/internal/model"
)

// CrateRepo stores purchase receipts.  payment_ref is unique, which makes
// completion idempotent even when two deliveries of the same provider
// event race.
type CrateRepo struct {
	db *sql.DB
}

// NewCrateRepo returns a CrateRepo bound to the given database.
func NewCrateRepo(db *sql.DB) *CrateRepo { return &CrateRepo{db: db} }

const crateColumns = `id, owner_id, livestream_id, video_timestamp, purchase_amount, payment_ref, purchased_at`

func scanCrate(row rowScanner) (*model.CrateEntry, error) {
	var e model.CrateEntry
	if err := row.Scan(&e.ID, &e.OwnerID, &e.LivestreamID, &e.VideoTimestamp, &e.PurchaseAmount, &e.PaymentRef, &e.PurchasedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// GetByRefTx looks up the receipt produced by a payment reference.
func (r *CrateRepo) GetByRefTx(ctx context.Context, tx *sql.Tx, ref string) (*model.CrateEntry, error) {
	return scanCrate(tx.QueryRowContext(ctx, `SELECT `+crateColumns+` FROM crate WHERE payment_ref = ?`, ref))
}

// InsertTx stores a receipt.  A reused payment reference is ErrConflict.
func (r *CrateRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.CrateEntry) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO crate
        (owner_id, livestream_id, video_timestamp, purchase_amount, payment_ref, purchased_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.LivestreamID, e.VideoTimestamp, e.PurchaseAmount, e.PaymentRef, e.PurchasedAt)
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
	e.ID = uint64(id)
	return nil
}

// DeleteByRefTx removes the receipt for ref and reports whether one
// existed.
func (r *CrateRepo) DeleteByRefTx(ctx context.Context, tx *sql.Tx, ref string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM crate WHERE payment_ref = ?`, ref)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListByOwner returns an owner's receipts, newest first.
func (r *CrateRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.CrateEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+crateColumns+` FROM crate
        WHERE owner_id = ? ORDER BY purchased_at DESC, id DESC LIMIT ?`, ownerID, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.CrateEntry, 0)
	for rows.Next() {
		e, err := scanCrate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
