package service

import (
	"context"

	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/queue"
)

// Notifier is the notification sink as seen by the services.
type Notifier interface {
	Record(ctx context.Context, ev notify.Event) error
	Alert(ctx context.Context, a notify.Alert) error
	Forward(ctx context.Context, f queue.PurchaseForward) error
}
