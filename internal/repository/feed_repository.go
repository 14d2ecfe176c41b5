package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/crate-auction/internal/model"
)

// FeedRepo is the append-only auction feed.
type FeedRepo struct {
	db *sql.DB
}

// NewFeedRepo returns a FeedRepo bound to the given database.
func NewFeedRepo(db *sql.DB) *FeedRepo { return &FeedRepo{db: db} }

// Insert appends one event.  The caller assigns the id.
func (r *FeedRepo) Insert(ctx context.Context, e *model.FeedEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO feed_events
        (id, kind, livestream_id, session_id, actor_id, actor_alias, actor_avatar, amount, message, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.LivestreamID, e.SessionID, e.ActorID, e.ActorAlias, e.ActorAvatar,
		e.Amount, e.Message, e.CreatedAt)
	return err
}

// ListByLivestream returns the most recent events of a broadcast, newest
// first.
func (r *FeedRepo) ListByLivestream(ctx context.Context, livestreamID uint64, limit int) ([]model.FeedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, kind, livestream_id, session_id, actor_id, actor_alias,
            actor_avatar, amount, message, created_at
        FROM feed_events WHERE livestream_id = ?
        ORDER BY created_at DESC, id DESC LIMIT ?`, livestreamID, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.FeedEvent, 0)
	for rows.Next() {
		var (
			e    model.FeedEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.LivestreamID, &e.SessionID, &e.ActorID, &e.ActorAlias,
			&e.ActorAvatar, &e.Amount, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = model.FeedKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
