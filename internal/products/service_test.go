package products

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/keys"
	storagememory "github.com/bidwire/auction/internal/storage/memory"
	storememory "github.com/bidwire/auction/internal/store/memory"
)

func newService() (*Service, *storememory.Store, *storagememory.Store) {
	ephemeral := storememory.New()
	durable := storagememory.New()
	broadcaster := broadcast.New(ephemeral, durable, durable, nil, nil)
	return New(durable, ephemeral, broadcaster, nil), ephemeral, durable
}

func validAuction() auction.Auction {
	return auction.Auction{
		Title:         "garden gnome",
		Description:   "slightly weathered",
		SellerID:      "seller-1",
		StartingPrice: 40,
		StartTime:     time.Now(),
		EndTime:       time.Now().Add(24 * time.Hour),
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*auction.Auction)
	}{
		{"empty title", func(a *auction.Auction) { a.Title = " " }},
		{"empty seller", func(a *auction.Auction) { a.SellerID = "" }},
		{"zero starting price", func(a *auction.Auction) { a.StartingPrice = 0 }},
		{"negative starting price", func(a *auction.Auction) { a.StartingPrice = -5 }},
		{"end before start", func(a *auction.Auction) { a.EndTime = a.StartTime.Add(-time.Hour) }},
		{"end equals start", func(a *auction.Auction) { a.EndTime = a.StartTime }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAuction()
			tc.mutate(&a)
			if _, err := svc.Create(ctx, a); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCreate_StartsOpenWithNoWinner(t *testing.T) {
	svc, _, _ := newService()
	created, err := svc.Create(context.Background(), validAuction())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Status != auction.StatusOpen {
		t.Fatalf("status = %s, want OPEN", created.Status)
	}
	if created.WinnerID != nil || created.WinningPrice != nil {
		t.Fatal("new auction must have no winner")
	}
}

func TestCreate_ClearsStaleEphemeralState(t *testing.T) {
	svc, ephemeral, _ := newService()
	ctx := context.Background()

	// Simulate leftovers from a previous auction under the same id.
	a := validAuction()
	a.ID = "recycled-id"
	_ = ephemeral.Set(ctx, keys.HighestBid(a.ID), "9999")
	_ = ephemeral.Set(ctx, keys.HighestBidder(a.ID), "old-bidder")
	_ = ephemeral.AddToSet(ctx, keys.Bidders(a.ID), "old-bidder")

	if _, err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, k := range keys.All(a.ID) {
		if _, ok, _ := ephemeral.Get(ctx, k); ok {
			t.Fatalf("stale key %s must be cleared on creation", k)
		}
	}
	if n, _ := ephemeral.SetSize(ctx, keys.Bidders(a.ID)); n != 0 {
		t.Fatalf("stale bidder set must be cleared, size %d", n)
	}
}

func TestGet_MergesLiveState(t *testing.T) {
	svc, ephemeral, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, validAuction())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = ephemeral.Set(ctx, keys.HighestBid(created.ID), "85")
	_ = ephemeral.AddToSet(ctx, keys.Bidders(created.ID), "alice")

	detail, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Auction.ID != created.ID {
		t.Fatalf("wrong auction %s", detail.Auction.ID)
	}
	if detail.Snapshot.CurrentHighestBid != 85 || detail.Snapshot.BidderCount != 1 {
		t.Fatalf("unexpected snapshot %+v", detail.Snapshot)
	}
}
