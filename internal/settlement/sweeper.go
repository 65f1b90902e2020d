// Package settlement closes expired auctions: it determines the winner from
// live bid state, writes the final outcome to durable storage exactly once,
// and then clears the ephemeral keys.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/keys"
	"github.com/bidwire/auction/internal/metrics"
	"github.com/bidwire/auction/internal/storage"
	"github.com/bidwire/auction/internal/store"
	"github.com/bidwire/auction/pkg/logger"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = time.Minute

// Sweeper periodically settles expired open auctions. It implements the
// system.Service lifecycle: Start schedules the sweep, Stop lets the
// in-flight sweep finish before returning.
type Sweeper struct {
	auctions    storage.AuctionStore
	users       storage.UserStore
	ephemeral   store.Store
	broadcaster *broadcast.Broadcaster
	interval    time.Duration
	log         *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New constructs a sweeper with the default interval.
func New(auctions storage.AuctionStore, users storage.UserStore, ephemeral store.Store, broadcaster *broadcast.Broadcaster, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	return &Sweeper{
		auctions:    auctions,
		users:       users,
		ephemeral:   ephemeral,
		broadcaster: broadcaster,
		interval:    DefaultInterval,
		log:         log,
	}
}

// WithInterval overrides the sweep interval. Call before Start.
func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

func (s *Sweeper) Name() string { return "settlement-sweeper" }

// Start schedules the periodic sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	schedule := "@every " + s.interval.String()
	if _, err := c.AddFunc(schedule, func() {
		s.Sweep(ctx, time.Now())
	}); err != nil {
		return fmt.Errorf("schedule settlement sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Infof("settlement sweeper started, interval %s", s.interval)
	return nil
}

// Stop halts scheduling and waits for a running sweep to complete.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep settles every auction that is OPEN with an end time before now.
// Each auction is processed independently: one failure is logged and skipped
// so the rest of the sweep proceeds, and the failed auction stays OPEN for
// the next tick.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	started := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(started)) }()

	expired, err := s.auctions.ListOpenExpired(ctx, now)
	if err != nil {
		s.log.WithError(err).Warn("list expired auctions failed")
		return
	}
	if len(expired) == 0 {
		return
	}
	s.log.Infof("settling %d expired auction(s)", len(expired))

	for _, a := range expired {
		if err := s.settle(ctx, a); err != nil {
			metrics.RecordSettlementError()
			s.log.WithError(err).WithField("auction_id", a.ID).Warn("settlement failed; will retry next sweep")
			continue
		}
		s.broadcaster.Broadcast(ctx, a.ID)
	}
}

// settle finalizes a single auction. Ephemeral cleanup strictly follows the
// durable write: a crash in between leaves the auction SETTLED with stale
// keys, which the (idempotent) next steps here and in auction re-creation
// clean up, whereas cleaning first could lose the winning bid forever.
func (s *Sweeper) settle(ctx context.Context, a auction.Auction) error {
	winnerID, winningPrice, err := s.determineWinner(ctx, a)
	if err != nil {
		return err
	}

	if _, err := s.auctions.CloseAuction(ctx, a.ID, winnerID, winningPrice); err != nil {
		if errors.Is(err, storage.ErrAlreadySettled) {
			// A concurrent sweep or an earlier crashed run won the
			// transition; just finish the cleanup.
			s.log.WithField("auction_id", a.ID).Info("auction already settled, cleaning up")
			return s.cleanup(ctx, a.ID)
		}
		return fmt.Errorf("close auction: %w", err)
	}

	if winnerID != nil {
		metrics.RecordSettlement("won")
		s.log.WithField("auction_id", a.ID).
			WithField("winner_id", *winnerID).
			WithField("winning_price", *winningPrice).
			Info("auction settled with winner")
	} else {
		metrics.RecordSettlement("no_sale")
		s.log.WithField("auction_id", a.ID).Info("auction settled with no sale")
	}

	return s.cleanup(ctx, a.ID)
}

// determineWinner reads the final bid state. A highest bidder whose user
// record no longer exists settles as a no-sale rather than leaving the
// auction open.
func (s *Sweeper) determineWinner(ctx context.Context, a auction.Auction) (*string, *int64, error) {
	bidderID, hasBidder, err := s.ephemeral.Get(ctx, keys.HighestBidder(a.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("read highest bidder: %w", err)
	}
	bidStr, hasBid, err := s.ephemeral.Get(ctx, keys.HighestBid(a.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("read highest bid: %w", err)
	}
	if !hasBidder || !hasBid {
		return nil, nil, nil
	}

	price, err := strconv.ParseInt(bidStr, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupt highest bid %q: %w", bidStr, err)
	}

	if _, err := s.users.GetUserByID(ctx, bidderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.WithField("auction_id", a.ID).
				WithField("bidder_id", bidderID).
				Warn("highest bidder no longer exists, settling as no sale")
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("resolve winner %s: %w", bidderID, err)
	}

	return &bidderID, &price, nil
}

func (s *Sweeper) cleanup(ctx context.Context, auctionID string) error {
	if err := s.ephemeral.Delete(ctx, keys.All(auctionID)...); err != nil {
		return fmt.Errorf("clear ephemeral state: %w", err)
	}
	return nil
}
