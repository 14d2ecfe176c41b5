// Package scheduler drives auctions forward when nobody bids: it awards
// lapsed countdowns, abandons unpaid sales and optionally opens sessions
// for live broadcasts.  Every step is idempotent, so overlapping sweeps
// (several instances, the HTTP trigger, the CLI) are harmless.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/service"
)

const batchSize = 200

// Auction is the part of the auction service the sweep drives.
type Auction interface {
	LapsedSessions(ctx context.Context, limit int) ([]uint64, error)
	ResolveExpiry(ctx context.Context, sessionID uint64) (*service.Resolution, error)
	OverdueSessions(ctx context.Context, limit int) ([]uint64, error)
	ExpireUnpaid(ctx context.Context, sessionID uint64) (bool, error)
	AutoOpenEnabled() bool
	LiveWithoutSession(ctx context.Context, limit int) ([]model.Livestream, error)
	AutoOpen(ctx context.Context, ls model.Livestream) (*model.BiddingSession, error)
}

// Report summarises one sweep.
type Report struct {
	Resolved int  `json:"resolved"`
	Expired  int  `json:"expired"`
	Opened   int  `json:"opened"`
	Failed   int  `json:"failed"`
	Skipped  bool `json:"skipped,omitempty"`
}

type Scheduler struct {
	auction  Auction
	lease    Lease
	interval time.Duration
	leaseTTL time.Duration
	metrics  *metrics.Metrics
}

// New builds a scheduler.  A nil lease makes every instance sweep.
func New(a Auction, lease Lease, cfg config.SchedulerConfig, m *metrics.Metrics) *Scheduler {
	return &Scheduler{auction: a, lease: lease, interval: cfg.Interval, leaseTTL: cfg.LeaseTTL, metrics: m}
}

// Start ticks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			if s.lease != nil {
				// a fresh context: ctx is already cancelled
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = s.lease.Release(rctx)
				cancel()
			}
			return
		}
	}
}

// Tick sweeps if this instance holds the lease.
func (s *Scheduler) Tick(ctx context.Context) Report {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.leaseTTL)
		if err != nil {
			// without Redis every instance sweeps; the steps are idempotent
			logger.Logger.WithError(err).Warn("scheduler lease unavailable, sweeping anyway")
		} else if !ok {
			return Report{Skipped: true}
		}
	}
	return s.Sweep(ctx)
}

// Sweep runs one pass.  Each session is handled on its own; a failure is
// logged and counted and the pass moves on.
func (s *Scheduler) Sweep(ctx context.Context) Report {
	start := time.Now()
	var r Report
	log := logger.Logger.WithField("component", "scheduler")

	if ids, err := s.auction.LapsedSessions(ctx, batchSize); err != nil {
		log.WithError(err).Error("list lapsed sessions")
		r.Failed++
	} else {
		for _, id := range ids {
			res, err := s.auction.ResolveExpiry(ctx, id)
			if err != nil {
				log.WithError(err).WithField("session_id", id).Error("resolve expiry")
				r.Failed++
				continue
			}
			if res.Resolved {
				r.Resolved++
			}
		}
	}

	if ids, err := s.auction.OverdueSessions(ctx, batchSize); err != nil {
		log.WithError(err).Error("list overdue payments")
		r.Failed++
	} else {
		for _, id := range ids {
			changed, err := s.auction.ExpireUnpaid(ctx, id)
			if err != nil {
				log.WithError(err).WithField("session_id", id).Error("expire unpaid session")
				r.Failed++
				continue
			}
			if changed {
				r.Expired++
			}
		}
	}

	if s.auction.AutoOpenEnabled() {
		if live, err := s.auction.LiveWithoutSession(ctx, batchSize); err != nil {
			log.WithError(err).Error("list live broadcasts")
			r.Failed++
		} else {
			for _, ls := range live {
				sess, err := s.auction.AutoOpen(ctx, ls)
				if err != nil {
					log.WithError(err).WithField("broadcast_id", ls.ID).Error("auto-open bidding")
					r.Failed++
					continue
				}
				if sess != nil {
					r.Opened++
				}
			}
		}
	}

	s.metrics.ObserveSweep(time.Since(start), r.Failed)
	if r.Resolved+r.Expired+r.Opened+r.Failed > 0 {
		log.WithFields(logrus.Fields{
			"resolved": r.Resolved,
			"expired":  r.Expired,
			"opened":   r.Opened,
			"failed":   r.Failed,
		}).Info("sweep finished")
	}
	return r
}
