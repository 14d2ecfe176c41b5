package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/repository"
)

const (
	maxTitleLen = 200
	maxAliasLen = 32
)

// DirectoryService maintains the broadcasts sessions attach to and the
// display profiles shown in the feed.
type DirectoryService struct {
	livestreams *repository.LivestreamRepo
	users       *repository.UserRepo
	clock       Clock
}

func NewDirectoryService(livestreams *repository.LivestreamRepo, users *repository.UserRepo, clock Clock) *DirectoryService {
	if livestreams == nil || users == nil {
		panic("nil dependency passed to NewDirectoryService")
	}
	if clock == nil {
		clock = SystemClock
	}
	return &DirectoryService{livestreams: livestreams, users: users, clock: clock}
}

// CreateLivestream registers a broadcast.  A broadcast created live gets
// its start time stamped now.
func (s *DirectoryService) CreateLivestream(ctx context.Context, actor Actor, title string, live bool) (*model.Livestream, error) {
	if !actor.Privileged() {
		return nil, ErrAuthorization
	}
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return nil, fmt.Errorf("title must be 1-%d characters: %w", maxTitleLen, ErrInvalidInput)
	}
	ls := &model.Livestream{Title: title, IsLive: live}
	if live {
		now := s.clock.Now().UnixMilli()
		ls.StartedAt = &now
	}
	if err := s.livestreams.Create(ctx, ls); err != nil {
		return nil, err
	}
	logger.Logger.WithFields(logrus.Fields{"broadcast_id": ls.ID, "live": live, "by": actor.ID}).Info("livestream registered")
	return ls, nil
}

// SetLive marks a broadcast live or offline.  Going live stamps the start
// time unless the broadcast is already live; going offline clears it.
func (s *DirectoryService) SetLive(ctx context.Context, actor Actor, id uint64, live bool) (*model.Livestream, error) {
	if !actor.Privileged() {
		return nil, ErrAuthorization
	}
	cur, err := s.livestreams.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "livestream", id)
	}
	var started *int64
	if live {
		started = cur.StartedAt
		if !cur.IsLive || started == nil {
			now := s.clock.Now().UnixMilli()
			started = &now
		}
	}
	if err := s.livestreams.SetLive(ctx, id, live, started); err != nil {
		return nil, notFound(err, "livestream", id)
	}
	if cur.IsLive != live {
		logger.Logger.WithFields(logrus.Fields{"broadcast_id": id, "live": live, "by": actor.ID}).Info("livestream liveness changed")
	}
	cur.IsLive, cur.StartedAt = live, started
	return cur, nil
}

// Profile returns the caller's display profile.
func (s *DirectoryService) Profile(ctx context.Context, actor Actor) (*model.Profile, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	p, err := s.users.GetProfile(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("profile %s: %w", actor.ID, ErrNotFound)
	}
	return p, err
}

// UpdateProfile replaces the caller's alias and avatar.  The subject comes
// from the token, so users can only edit themselves.
func (s *DirectoryService) UpdateProfile(ctx context.Context, actor Actor, alias, avatarURL string) (*model.Profile, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	alias = strings.TrimSpace(alias)
	if alias == "" || utf8.RuneCountInString(alias) > maxAliasLen {
		return nil, fmt.Errorf("alias must be 1-%d characters: %w", maxAliasLen, ErrInvalidInput)
	}
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL != "" {
		u, err := url.Parse(avatarURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("avatar_url must be an http(s) URL: %w", ErrInvalidInput)
		}
	}
	p := model.Profile{ID: actor.ID, Alias: alias, AvatarURL: avatarURL}
	if err := s.users.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}
