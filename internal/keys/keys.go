// Package keys derives the ephemeral-store keys and broadcast topic for an
// auction. Every component must go through these helpers; a divergent key
// breaks the lock and settlement invariants silently.
package keys

const (
	auctionPrefix = "auction:"
	lockPrefix    = "auction_lock:"
	topicPrefix   = "/topic/auctions/"
)

// HighestBid is the key holding the current highest bid amount.
func HighestBid(auctionID string) string { return auctionPrefix + auctionID + ":highestBid" }

// HighestBidder is the key holding the current highest bidder's id.
func HighestBidder(auctionID string) string { return auctionPrefix + auctionID + ":highestBidder" }

// Bidders is the key of the distinct-bidder set.
func Bidders(auctionID string) string { return auctionPrefix + auctionID + ":bidders" }

// Lock is the mutual-exclusion key serializing bids on one auction.
func Lock(auctionID string) string { return lockPrefix + auctionID }

// Topic is the broadcast topic subscribers listen on.
func Topic(auctionID string) string { return topicPrefix + auctionID }

// All returns the ephemeral state keys for an auction, in the order they are
// cleaned up. The lock key is excluded: it expires on its own.
func All(auctionID string) []string {
	return []string{HighestBid(auctionID), HighestBidder(auctionID), Bidders(auctionID)}
}
