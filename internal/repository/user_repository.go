package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/crate-auction/internal/model"
)

// UserRepo reads display profiles.  Accounts live with the identity
// provider; this table only mirrors what the feed and the holder badge
// render.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProfile(ctx context.Context, q querier, id string) (*model.Profile, error) {
	var p model.Profile
	err := q.QueryRowContext(ctx,
		"SELECT id,alias,avatar_url FROM users WHERE id=? LIMIT 1", id).Scan(&p.ID, &p.Alias, &p.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile fetches a profile by subject id.
func (r *UserRepo) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return getProfile(ctx, r.DB, id)
}

// GetProfileTx fetches a profile inside tx so read models see one
// snapshot.
func (r *UserRepo) GetProfileTx(ctx context.Context, tx *sql.Tx, id string) (*model.Profile, error) {
	return getProfile(ctx, tx, id)
}

// Upsert creates or replaces a profile.  REPLACE is understood by both
// MySQL and SQLite.
func (r *UserRepo) Upsert(ctx context.Context, p model.Profile) error {
	p.Alias = strings.TrimSpace(p.Alias)
	if p.ID == "" || p.Alias == "" {
		return errors.New("profile id and alias are required")
	}
	_, err := r.DB.ExecContext(ctx,
		"REPLACE INTO users (id, alias, avatar_url) VALUES (?,?,?)", p.ID, p.Alias, p.AvatarURL)
	return err
}
