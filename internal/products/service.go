// Package products manages the durable auction records around the bidding
// core: creation of new auctions and detail reads that merge live bid state.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/keys"
	"github.com/bidwire/auction/internal/storage"
	"github.com/bidwire/auction/internal/store"
	"github.com/bidwire/auction/pkg/logger"
)

// ErrInvalid reports a validation failure on auction creation.
var ErrInvalid = errors.New("invalid auction")

// Detail is an auction's durable record together with its live state.
type Detail struct {
	Auction  auction.Auction
	Snapshot auction.Snapshot
}

// Service creates and reads auction products.
type Service struct {
	auctions    storage.AuctionStore
	ephemeral   store.Store
	broadcaster *broadcast.Broadcaster
	log         *logger.Logger
}

// New constructs the product service.
func New(auctions storage.AuctionStore, ephemeral store.Store, broadcaster *broadcast.Broadcaster, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("products")
	}
	return &Service{auctions: auctions, ephemeral: ephemeral, broadcaster: broadcaster, log: log}
}

// Create validates and persists a new auction, then clears any ephemeral
// state left under the same id. Stale live state must never outlive its
// auction: a reused id would otherwise seed the new auction with the old
// one's highest bid.
func (s *Service) Create(ctx context.Context, a auction.Auction) (auction.Auction, error) {
	if strings.TrimSpace(a.Title) == "" {
		return auction.Auction{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if strings.TrimSpace(a.SellerID) == "" {
		return auction.Auction{}, fmt.Errorf("%w: seller_id is required", ErrInvalid)
	}
	if a.StartingPrice <= 0 {
		return auction.Auction{}, fmt.Errorf("%w: starting price must be positive", ErrInvalid)
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() || !a.EndTime.After(a.StartTime) {
		return auction.Auction{}, fmt.Errorf("%w: auction end must be after start", ErrInvalid)
	}

	created, err := s.auctions.CreateAuction(ctx, a)
	if err != nil {
		return auction.Auction{}, fmt.Errorf("create auction: %w", err)
	}

	if err := s.ephemeral.Delete(ctx, keys.All(created.ID)...); err != nil {
		// The record exists; stale-state cleanup failing is worth a loud
		// log but not a failed creation.
		s.log.WithError(err).Warnf("clear stale ephemeral state for %s", created.ID)
	}

	s.log.WithField("auction_id", created.ID).
		WithField("seller_id", created.SellerID).
		Info("auction created")
	return created, nil
}

// Get returns an auction with its current snapshot.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	a, err := s.auctions.GetAuction(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	snap, err := s.broadcaster.Snapshot(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("snapshot for %s: %w", id, err)
	}
	return Detail{Auction: a, Snapshot: snap}, nil
}

// List returns all auctions.
func (s *Service) List(ctx context.Context) ([]auction.Auction, error) {
	return s.auctions.ListAuctions(ctx)
}
