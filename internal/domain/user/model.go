package user

import "time"

// User is the minimal identity record the settlement path needs: the highest
// bidder must still resolve to a live user to win, otherwise the auction
// settles as a no-sale.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
