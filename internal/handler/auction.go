package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/service"
)

// AuctionHandler exposes the live bidding operations.  Authentication and
// role checks run in middleware; the service re-checks authorization.
type AuctionHandler struct {
	Auction *service.AuctionService
}

// NewAuctionHandler panics on a nil service.
func NewAuctionHandler(a *service.AuctionService) *AuctionHandler {
	if a == nil {
		panic("nil auction service passed to NewAuctionHandler")
	}
	return &AuctionHandler{Auction: a}
}

// Current handles GET /v1/livestreams/:id/bidding.  It answers 200 with
// {"session": null} when the broadcast has no active session so clients
// can poll without special-casing 404.
func (h *AuctionHandler) Current(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid livestream id")
	}
	view, err := h.Auction.CurrentSession(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": view})
}

// Feed handles GET /v1/livestreams/:id/feed?limit=N.
func (h *AuctionHandler) Feed(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid livestream id")
	}
	events, err := h.Auction.RecentFeed(c.Request().Context(), id, queryLimit(c, 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// Open handles POST /v1/livestreams/:id/bidding with body
// {"video_timestamp": <seconds>}.
func (h *AuctionHandler) Open(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid livestream id")
	}
	var body struct {
		VideoTimestamp *uint32 `json:"video_timestamp"`
	}
	if err := c.Bind(&body); err != nil || body.VideoTimestamp == nil {
		return badRequest(c, "video_timestamp is required")
	}
	sess, err := h.Auction.OpenBidding(c.Request().Context(), actorFrom(c), id, *body.VideoTimestamp)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// Close handles POST /v1/bidding/sessions/:id/close.
func (h *AuctionHandler) Close(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	if err := h.Auction.CloseBidding(c.Request().Context(), actorFrom(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PlaceBid handles POST /v1/bidding/sessions/:id/bids.  The amount is
// always derived server side; any request body is ignored.
func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	bid, err := h.Auction.PlaceBid(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

// Resolve handles POST /v1/bidding/sessions/:id/resolve, sent by clients
// whose countdown reached zero.  It is idempotent and safe to race with
// the scheduler.
func (h *AuctionHandler) Resolve(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	res, err := h.Auction.ResolveExpiry(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id": res.SessionID,
		"resolved":   res.Resolved,
		"winner":     res.Winner,
	})
}
