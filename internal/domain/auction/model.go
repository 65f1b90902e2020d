package auction

import "time"

// Status tracks the lifecycle of an auction's durable record.
type Status string

const (
	// StatusOpen means the auction is accepting bids.
	StatusOpen Status = "OPEN"
	// StatusSettled means the auction has been finalized, with or without
	// a winner. Terminal.
	StatusSettled Status = "SETTLED"
)

// Auction is the durable record of a product up for auction. StartingPrice
// is immutable after creation; WinnerID and WinningPrice are written exactly
// once, at settlement, and stay nil for a no-sale.
type Auction struct {
	ID            string
	Title         string
	Description   string
	SellerID      string
	StartingPrice int64
	WinnerID      *string
	WinningPrice  *int64
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Open reports whether the auction still accepts bids.
func (a Auction) Open() bool { return a.Status == StatusOpen }

// Expired reports whether the bidding window has closed at the given time.
func (a Auction) Expired(now time.Time) bool { return now.After(a.EndTime) }

// Snapshot is the immutable state published to subscribers of an auction's
// topic after every accepted bid and after settlement.
type Snapshot struct {
	CurrentHighestBid int64  `json:"currentHighestBid"`
	HighestBidderName string `json:"highestBidderName"`
	BidderCount       int    `json:"bidderCount"`
}
