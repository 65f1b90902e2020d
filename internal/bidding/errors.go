package bidding

import "errors"

// Business rejections and terminal faults of the bid path. All are terminal
// for the attempt; only ErrLockContention is worth an automatic retry by
// the caller. Infrastructure faults (store or lock unavailable) are NOT
// mapped onto these sentinels and propagate as plain wrapped errors.
var (
	// ErrAuctionNotFound means no durable record exists for the auction id.
	ErrAuctionNotFound = errors.New("auction not found")
	// ErrAuctionClosed means the auction has already been settled.
	ErrAuctionClosed = errors.New("auction closed")
	// ErrLockContention means the per-auction lock could not be acquired
	// within the wait budget. No state was mutated.
	ErrLockContention = errors.New("lock contention")
	// ErrBidTooLow means the bid did not exceed the effective current high.
	ErrBidTooLow = errors.New("bid too low")
)
