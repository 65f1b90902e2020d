package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/domain/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadySettled is returned by CloseAuction when the auction is no
// longer OPEN. Settlement treats it as "someone already did this".
var ErrAlreadySettled = errors.New("storage: auction already settled")

// AuctionStore persists auction records. CloseAuction is the single durable
// mutation the bidding core performs: it must transition OPEN to SETTLED and
// write the outcome atomically, failing with ErrAlreadySettled if the record
// is not OPEN anymore.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error)
	GetAuction(ctx context.Context, id string) (auction.Auction, error)
	ListAuctions(ctx context.Context) ([]auction.Auction, error)
	ListOpenExpired(ctx context.Context, now time.Time) ([]auction.Auction, error)
	CloseAuction(ctx context.Context, id string, winnerID *string, winningPrice *int64) (auction.Auction, error)
}

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUserByID(ctx context.Context, id string) (user.User, error)
}
