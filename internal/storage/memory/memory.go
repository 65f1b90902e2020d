// Package memory is a thread-safe in-memory persistence layer implementing
// the storage interfaces. It is intended for tests and prototyping.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/domain/user"
	"github.com/bidwire/auction/internal/storage"
)

// Store implements storage.AuctionStore and storage.UserStore.
type Store struct {
	mu       sync.RWMutex
	auctions map[string]auction.Auction
	users    map[string]user.User
}

var _ storage.AuctionStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		auctions: make(map[string]auction.Auction),
		users:    make(map[string]user.User),
	}
}

// AuctionStore implementation ------------------------------------------------

func (s *Store) CreateAuction(_ context.Context, a auction.Auction) (auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, exists := s.auctions[a.ID]; exists {
		return auction.Auction{}, storage.ErrNotFound
	}

	now := time.Now().UTC()
	a.Status = auction.StatusOpen
	a.WinnerID = nil
	a.WinningPrice = nil
	a.CreatedAt = now
	a.UpdatedAt = now

	s.auctions[a.ID] = a
	return a, nil
}

func (s *Store) GetAuction(_ context.Context, id string) (auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return auction.Auction{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAuctions(_ context.Context) ([]auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]auction.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		result = append(result, a)
	}
	return result, nil
}

func (s *Store) ListOpenExpired(_ context.Context, now time.Time) ([]auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]auction.Auction, 0)
	for _, a := range s.auctions {
		if a.Status == auction.StatusOpen && a.EndTime.Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *Store) CloseAuction(_ context.Context, id string, winnerID *string, winningPrice *int64) (auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return auction.Auction{}, storage.ErrNotFound
	}
	if a.Status != auction.StatusOpen {
		return auction.Auction{}, storage.ErrAlreadySettled
	}

	a.Status = auction.StatusSettled
	a.WinnerID = winnerID
	a.WinningPrice = winningPrice
	a.UpdatedAt = time.Now().UTC()

	s.auctions[id] = a
	return a, nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

// DeleteUser removes a user. Settlement tests use it to simulate a highest
// bidder whose account vanished before the sweep.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}
