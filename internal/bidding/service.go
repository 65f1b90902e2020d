// Package bidding implements bid acceptance: the lock-protected critical
// section that validates a bid against the live highest bid and records the
// new state.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/keys"
	"github.com/bidwire/auction/internal/lock"
	"github.com/bidwire/auction/internal/metrics"
	"github.com/bidwire/auction/internal/storage"
	"github.com/bidwire/auction/internal/store"
	"github.com/bidwire/auction/pkg/logger"
)

const (
	// DefaultLockWait bounds how long a bid attempt queues for the
	// per-auction lock before being rejected with ErrLockContention.
	DefaultLockWait = 10 * time.Second
	// DefaultLockHold is the lock TTL: the outside bound on the critical
	// section, after which a crashed holder's lock self-releases.
	DefaultLockHold = 5 * time.Second
)

// Service serializes and applies bids.
type Service struct {
	locker      lock.Locker
	ephemeral   store.Store
	auctions    storage.AuctionStore
	broadcaster *broadcast.Broadcaster
	log         *logger.Logger

	lockWait time.Duration
	lockHold time.Duration
}

// Option customizes the service.
type Option func(*Service)

// WithLockTimings overrides the lock wait and hold durations.
func WithLockTimings(wait, hold time.Duration) Option {
	return func(s *Service) {
		if wait > 0 {
			s.lockWait = wait
		}
		if hold > 0 {
			s.lockHold = hold
		}
	}
}

// New constructs the bid acceptance service.
func New(locker lock.Locker, ephemeral store.Store, auctions storage.AuctionStore, broadcaster *broadcast.Broadcaster, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("bidding")
	}
	s := &Service{
		locker:      locker,
		ephemeral:   ephemeral,
		auctions:    auctions,
		broadcaster: broadcaster,
		log:         log,
		lockWait:    DefaultLockWait,
		lockHold:    DefaultLockHold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid applies a bid to an auction. On success the accepted state is
// broadcast to the auction's topic and returned to the caller. On any error
// no ephemeral state is mutated and nothing is broadcast.
//
// The durable record's status is the only closed-check: a bid arriving after
// the end time but before the settlement sweep flips the status is still
// honored.
func (s *Service) PlaceBid(ctx context.Context, auctionID string, amount int64, bidderID string) (auction.Snapshot, error) {
	if err := s.placeBidLocked(ctx, auctionID, amount, bidderID); err != nil {
		metrics.RecordBid(bidResult(err))
		return auction.Snapshot{}, err
	}
	metrics.RecordBid("accepted")

	// Outside the critical section: broadcast may lag or fail without
	// affecting the recorded bid.
	s.broadcaster.Broadcast(ctx, auctionID)

	snap, err := s.broadcaster.Snapshot(ctx, auctionID)
	if err != nil {
		// The bid stands; report what we know.
		s.log.WithError(err).Warnf("snapshot after accepted bid on %s", auctionID)
		return auction.Snapshot{CurrentHighestBid: amount, HighestBidderName: bidderID, BidderCount: 1}, nil
	}
	return snap, nil
}

func (s *Service) placeBidLocked(ctx context.Context, auctionID string, amount int64, bidderID string) error {
	handle, err := s.locker.Acquire(ctx, keys.Lock(auctionID), s.lockWait, s.lockHold)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.log.WithField("auction_id", auctionID).Warn("bid rejected: lock contention")
			return ErrLockContention
		}
		return fmt.Errorf("acquire bid lock for %s: %w", auctionID, err)
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			s.log.WithError(err).Warnf("release bid lock for %s", auctionID)
		}
	}()

	a, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
		}
		return fmt.Errorf("load auction %s: %w", auctionID, err)
	}
	if !a.Open() {
		return fmt.Errorf("%w: %s", ErrAuctionClosed, auctionID)
	}

	current, err := s.effectiveHighestBid(ctx, auctionID, a.StartingPrice)
	if err != nil {
		return err
	}
	if amount <= current {
		s.log.WithField("auction_id", auctionID).
			WithField("bid", amount).
			WithField("current", current).
			Info("bid rejected: not above current high")
		return fmt.Errorf("%w: bid %d, current high %d", ErrBidTooLow, amount, current)
	}

	if err := s.ephemeral.Set(ctx, keys.HighestBid(auctionID), strconv.FormatInt(amount, 10)); err != nil {
		return fmt.Errorf("record highest bid for %s: %w", auctionID, err)
	}
	if err := s.ephemeral.Set(ctx, keys.HighestBidder(auctionID), bidderID); err != nil {
		return fmt.Errorf("record highest bidder for %s: %w", auctionID, err)
	}
	if err := s.ephemeral.AddToSet(ctx, keys.Bidders(auctionID), bidderID); err != nil {
		return fmt.Errorf("record bidder for %s: %w", auctionID, err)
	}

	s.log.WithField("auction_id", auctionID).
		WithField("bid", amount).
		WithField("bidder_id", bidderID).
		Info("bid accepted")
	return nil
}

// effectiveHighestBid returns the live highest bid, or the starting price
// when no bid has been recorded yet.
func (s *Service) effectiveHighestBid(ctx context.Context, auctionID string, startingPrice int64) (int64, error) {
	raw, ok, err := s.ephemeral.Get(ctx, keys.HighestBid(auctionID))
	if err != nil {
		return 0, fmt.Errorf("read highest bid for %s: %w", auctionID, err)
	}
	if !ok {
		return startingPrice, nil
	}
	bid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt highest bid %q for %s: %w", raw, auctionID, err)
	}
	return bid, nil
}

func bidResult(err error) string {
	switch {
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ErrLockContention):
		return "lock_contention"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	default:
		return "fault"
	}
}
