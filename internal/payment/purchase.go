package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Kind is the purchase kind carried in metadata.type.
type Kind string

const (
	KindTip           Kind = "tip"
	KindPPV           Kind = "ppv"
	KindLivestreamPPV Kind = "livestream_ppv"
	KindBid           Kind = "bid"
)

const (
	metaType         = "type"
	metaSessionID    = "sessionId"
	metaLivestreamID = "livestreamId"
	metaBidderID     = "bidderId"
	metaUserID       = "userId"
	metaVideoID      = "videoId"
	metaAmount       = "amount"
)

var ErrUnknownPurchase = errors.New("unknown purchase type")

// Purchase is the decoded metadata of a checkout.  The set of
// implementations is closed; each one routes itself to the matching
// PurchaseHandler method, so adding a kind does not compile until every
// handler supports it.
type Purchase interface {
	Kind() Kind
	Metadata() map[string]string
	dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error
}

// PurchaseHandler reacts to verified provider events, one method per
// purchase kind.
type PurchaseHandler interface {
	HandleBid(ctx context.Context, ev *Event, p BidPurchase) error
	HandleTip(ctx context.Context, ev *Event, p TipPurchase) error
	HandlePPV(ctx context.Context, ev *Event, p PPVPurchase) error
	HandleLivestreamPPV(ctx context.Context, ev *Event, p LivestreamPPVPurchase) error
}

// BidPurchase pays for a won auction.
type BidPurchase struct {
	SessionID    uint64
	LivestreamID uint64
	BidderID     string
	Amount       int64
	raw          map[string]string
}

// TipPurchase is a tip to a streamer.
type TipPurchase struct {
	LivestreamID string
	UserID       string
	Amount       string
	raw          map[string]string
}

// PPVPurchase unlocks a recorded video.
type PPVPurchase struct {
	VideoID string
	UserID  string
	raw     map[string]string
}

// LivestreamPPVPurchase unlocks a paid live broadcast.
type LivestreamPPVPurchase struct {
	LivestreamID string
	UserID       string
	raw          map[string]string
}

func (BidPurchase) Kind() Kind           { return KindBid }
func (TipPurchase) Kind() Kind           { return KindTip }
func (PPVPurchase) Kind() Kind           { return KindPPV }
func (LivestreamPPVPurchase) Kind() Kind { return KindLivestreamPPV }

func (p BidPurchase) Metadata() map[string]string           { return p.raw }
func (p TipPurchase) Metadata() map[string]string           { return p.raw }
func (p PPVPurchase) Metadata() map[string]string           { return p.raw }
func (p LivestreamPPVPurchase) Metadata() map[string]string { return p.raw }

func (p BidPurchase) dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error {
	return h.HandleBid(ctx, ev, p)
}

func (p TipPurchase) dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error {
	return h.HandleTip(ctx, ev, p)
}

func (p PPVPurchase) dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error {
	return h.HandlePPV(ctx, ev, p)
}

func (p LivestreamPPVPurchase) dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error {
	return h.HandleLivestreamPPV(ctx, ev, p)
}

// DecodePurchase turns checkout metadata into its typed purchase.
func DecodePurchase(md map[string]string) (Purchase, error) {
	switch Kind(md[metaType]) {
	case KindBid:
		sessionID, err := strconv.ParseUint(md[metaSessionID], 10, 64)
		if err != nil || sessionID == 0 {
			return nil, fmt.Errorf("bid metadata: invalid %s %q", metaSessionID, md[metaSessionID])
		}
		amount, err := strconv.ParseInt(md[metaAmount], 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("bid metadata: invalid %s %q", metaAmount, md[metaAmount])
		}
		if md[metaBidderID] == "" {
			return nil, fmt.Errorf("bid metadata: missing %s", metaBidderID)
		}
		// livestreamId is informational; older checkouts may not carry it
		livestreamID, _ := strconv.ParseUint(md[metaLivestreamID], 10, 64)
		return BidPurchase{SessionID: sessionID, LivestreamID: livestreamID, BidderID: md[metaBidderID], Amount: amount, raw: md}, nil
	case KindTip:
		return TipPurchase{LivestreamID: md[metaLivestreamID], UserID: md[metaUserID], Amount: md[metaAmount], raw: md}, nil
	case KindPPV:
		return PPVPurchase{VideoID: md[metaVideoID], UserID: md[metaUserID], raw: md}, nil
	case KindLivestreamPPV:
		return LivestreamPPVPurchase{LivestreamID: md[metaLivestreamID], UserID: md[metaUserID], raw: md}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPurchase, md[metaType])
}
