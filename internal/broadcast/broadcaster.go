// Package broadcast assembles auction state snapshots and fans them out to
// topic subscribers. Publishing is fire-and-forget: a failed broadcast is
// logged and dropped, never rolled back into the bid or settlement that
// triggered it.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/keys"
	"github.com/bidwire/auction/internal/storage"
	"github.com/bidwire/auction/internal/store"
	"github.com/bidwire/auction/pkg/logger"
)

// NoBidderLabel is published while no bid has been placed and when an
// auction settles without a winner.
const NoBidderLabel = "no bids yet"

// Publisher delivers a snapshot to every subscriber of a topic.
type Publisher interface {
	Publish(topic string, snap auction.Snapshot) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(topic string, snap auction.Snapshot) error

func (f PublisherFunc) Publish(topic string, snap auction.Snapshot) error { return f(topic, snap) }

// Broadcaster builds and publishes auction snapshots.
type Broadcaster struct {
	ephemeral store.Store
	auctions  storage.AuctionStore
	users     storage.UserStore
	publisher Publisher
	log       *logger.Logger
}

// New constructs a broadcaster. A nil publisher disables fan-out but keeps
// snapshot building available.
func New(ephemeral store.Store, auctions storage.AuctionStore, users storage.UserStore, publisher Publisher, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.NewDefault("broadcast")
	}
	return &Broadcaster{
		ephemeral: ephemeral,
		auctions:  auctions,
		users:     users,
		publisher: publisher,
		log:       log,
	}
}

// Snapshot assembles the current state of an auction. While the auction is
// open the ephemeral store is authoritative; once settled, the durable
// winner and winning price take over.
func (b *Broadcaster) Snapshot(ctx context.Context, auctionID string) (auction.Snapshot, error) {
	a, err := b.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return auction.Snapshot{}, fmt.Errorf("load auction %s: %w", auctionID, err)
	}

	if a.Status == auction.StatusSettled {
		return b.settledSnapshot(ctx, a), nil
	}
	return b.liveSnapshot(ctx, auctionID)
}

func (b *Broadcaster) liveSnapshot(ctx context.Context, auctionID string) (auction.Snapshot, error) {
	snap := auction.Snapshot{HighestBidderName: NoBidderLabel}

	bidStr, ok, err := b.ephemeral.Get(ctx, keys.HighestBid(auctionID))
	if err != nil {
		return auction.Snapshot{}, err
	}
	if ok {
		bid, err := strconv.ParseInt(bidStr, 10, 64)
		if err != nil {
			return auction.Snapshot{}, fmt.Errorf("corrupt highest bid %q for auction %s: %w", bidStr, auctionID, err)
		}
		snap.CurrentHighestBid = bid
	}

	bidderID, ok, err := b.ephemeral.Get(ctx, keys.HighestBidder(auctionID))
	if err != nil {
		return auction.Snapshot{}, err
	}
	if ok {
		snap.HighestBidderName = b.bidderLabel(ctx, bidderID)
	}

	count, err := b.ephemeral.SetSize(ctx, keys.Bidders(auctionID))
	if err != nil {
		return auction.Snapshot{}, err
	}
	snap.BidderCount = int(count)

	return snap, nil
}

func (b *Broadcaster) settledSnapshot(ctx context.Context, a auction.Auction) auction.Snapshot {
	snap := auction.Snapshot{HighestBidderName: NoBidderLabel}
	if a.WinningPrice != nil {
		snap.CurrentHighestBid = *a.WinningPrice
	}
	if a.WinnerID != nil {
		snap.HighestBidderName = b.bidderLabel(ctx, *a.WinnerID)
	}
	return snap
}

// bidderLabel resolves a bidder id to a display name, falling back to the
// raw id when the user record is gone.
func (b *Broadcaster) bidderLabel(ctx context.Context, bidderID string) string {
	if b.users == nil {
		return bidderID
	}
	u, err := b.users.GetUserByID(ctx, bidderID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.WithError(err).Warnf("resolve bidder %s", bidderID)
		}
		return bidderID
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Broadcast publishes the auction's current snapshot to its topic. Failures
// are logged and swallowed.
func (b *Broadcaster) Broadcast(ctx context.Context, auctionID string) {
	if b.publisher == nil {
		return
	}
	snap, err := b.Snapshot(ctx, auctionID)
	if err != nil {
		b.log.WithError(err).Warnf("build snapshot for auction %s", auctionID)
		return
	}
	if err := b.publisher.Publish(keys.Topic(auctionID), snap); err != nil {
		b.log.WithError(err).Warnf("publish snapshot for auction %s", auctionID)
	}
}
