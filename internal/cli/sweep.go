package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/database"
	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
	"github.com/iliyamo/crate-auction/internal/scheduler"
	"github.com/iliyamo/crate-auction/internal/service"
)

// NewSweepCommand runs one expiry sweep against the configured database.
// It lets system cron act as the periodic invoker when the in-process
// scheduler is disabled.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Resolve lapsed countdowns and expire unpaid sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			r, err := runSweep(ctx)
			if err != nil {
				return err
			}
			if err := emit(cmd.OutOrStdout(), rootOpts, r, func(w io.Writer) {
				fprintf(w, "resolved=%d expired=%d opened=%d failed=%d\n", r.Resolved, r.Expired, r.Opened, r.Failed)
			}); err != nil {
				return err
			}
			if r.Failed > 0 {
				return fmt.Errorf("%d sweep steps failed", r.Failed)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "abort the sweep after this long")
	return cmd
}

func runSweep(ctx context.Context) (scheduler.Report, error) {
	db, err := database.Open(config.LoadDBConfig())
	if err != nil {
		return scheduler.Report{}, err
	}
	defer db.Close()

	var pub queue.Publisher = queue.NopPublisher{}
	if url := config.LoadRabbitURL(); url != "" {
		p := queue.NewAMQPPublisher(url)
		defer p.Close()
		pub = p
	}
	users, feed := repository.NewUserRepo(db), repository.NewFeedRepo(db)
	auction := service.NewAuctionService(service.AuctionDeps{
		DB:          db,
		Sessions:    repository.NewSessionRepo(db),
		Bids:        repository.NewBidRepo(db),
		Users:       users,
		Livestreams: repository.NewLivestreamRepo(db),
		Feed:        feed,
		Notifier:    notify.NewSink(feed, users, pub),
		Config:      config.LoadAuctionConfig(),
	})
	return scheduler.New(auction, nil, config.LoadSchedulerConfig(), nil).Sweep(ctx), nil
}
