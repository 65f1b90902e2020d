package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bidwire/auction/internal/bidding"
	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/domain/user"
	"github.com/bidwire/auction/internal/keys"
	lockmemory "github.com/bidwire/auction/internal/lock/memory"
	storagememory "github.com/bidwire/auction/internal/storage/memory"
	storememory "github.com/bidwire/auction/internal/store/memory"
)

type fixture struct {
	sweeper   *Sweeper
	bids      *bidding.Service
	ephemeral *storememory.Store
	durable   *storagememory.Store
	published *recorder
}

type recorder struct {
	mu    sync.Mutex
	snaps map[string][]auction.Snapshot
}

func (r *recorder) Publish(topic string, snap auction.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[topic] = append(r.snaps[topic], snap)
	return nil
}

func (r *recorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps[topic])
}

func (r *recorder) last(topic string) (auction.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snaps := r.snaps[topic]
	if len(snaps) == 0 {
		return auction.Snapshot{}, false
	}
	return snaps[len(snaps)-1], true
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ephemeral := storememory.New()
	durable := storagememory.New()
	rec := &recorder{snaps: make(map[string][]auction.Snapshot)}

	broadcaster := broadcast.New(ephemeral, durable, durable, rec, nil)
	bids := bidding.New(lockmemory.New(), ephemeral, durable, broadcaster, nil)
	sweeper := New(durable, durable, ephemeral, broadcaster, nil)
	return &fixture{sweeper: sweeper, bids: bids, ephemeral: ephemeral, durable: durable, published: rec}
}

func (f *fixture) openAuction(t *testing.T, startingPrice int64, endsIn time.Duration) auction.Auction {
	t.Helper()
	a, err := f.durable.CreateAuction(context.Background(), auction.Auction{
		Title: "item", SellerID: "seller", StartingPrice: startingPrice,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(endsIn),
	})
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func (f *fixture) addUser(t *testing.T, name string) user.User {
	t.Helper()
	u, err := f.durable.CreateUser(context.Background(), user.User{Name: name, Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestSweep_WinnerDetermination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	// 150, 200 accepted; 180 rejected against the 200 high.
	for _, b := range []struct {
		amount int64
		bidder string
	}{{150, alice.ID}, {200, bob.ID}} {
		if _, err := f.bids.PlaceBid(ctx, a.ID, b.amount, b.bidder); err != nil {
			t.Fatalf("bid %d: %v", b.amount, err)
		}
	}
	if _, err := f.bids.PlaceBid(ctx, a.ID, 180, alice.ID); err == nil {
		t.Fatal("the 180 bid should have been rejected")
	}

	// Sweep with "now" past the end time.
	f.sweeper.Sweep(ctx, a.EndTime.Add(time.Minute))

	settled, err := f.durable.GetAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload auction: %v", err)
	}
	if settled.Status != auction.StatusSettled {
		t.Fatalf("status = %s, want SETTLED", settled.Status)
	}
	if settled.WinnerID == nil || *settled.WinnerID != bob.ID {
		t.Fatalf("winner = %v, want %s", settled.WinnerID, bob.ID)
	}
	if settled.WinningPrice == nil || *settled.WinningPrice != 200 {
		t.Fatalf("winning price = %v, want 200", settled.WinningPrice)
	}

	for _, k := range keys.All(a.ID) {
		if _, ok, _ := f.ephemeral.Get(ctx, k); ok {
			t.Fatalf("ephemeral key %s should be gone after settlement", k)
		}
	}
	if n, _ := f.ephemeral.SetSize(ctx, keys.Bidders(a.ID)); n != 0 {
		t.Fatalf("bidder set should be gone, size %d", n)
	}
}

func TestSweep_NoBidsSettlesAsNoSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	f.sweeper.Sweep(ctx, a.EndTime.Add(time.Minute))

	settled, err := f.durable.GetAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload auction: %v", err)
	}
	if settled.Status != auction.StatusSettled {
		t.Fatalf("status = %s, want SETTLED", settled.Status)
	}
	if settled.WinnerID != nil || settled.WinningPrice != nil {
		t.Fatalf("no-sale must leave winner fields nil, got %v/%v", settled.WinnerID, settled.WinningPrice)
	}
	if len(f.ephemeral.Keys()) != 0 {
		t.Fatalf("ephemeral keys should be absent, got %v", f.ephemeral.Keys())
	}
}

func TestSweep_DeletedWinnerSettlesAsNoSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	ghost := f.addUser(t, "ghost")
	if _, err := f.bids.PlaceBid(ctx, a.ID, 150, ghost.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := f.durable.DeleteUser(ctx, ghost.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	f.sweeper.Sweep(ctx, a.EndTime.Add(time.Minute))

	settled, _ := f.durable.GetAuction(ctx, a.ID)
	if settled.Status != auction.StatusSettled {
		t.Fatal("auction must settle even when the winner's account is gone")
	}
	if settled.WinnerID != nil || settled.WinningPrice != nil {
		t.Fatal("vanished winner must settle as no-sale")
	}
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	alice := f.addUser(t, "alice")
	if _, err := f.bids.PlaceBid(ctx, a.ID, 150, alice.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}

	after := a.EndTime.Add(time.Minute)
	f.sweeper.Sweep(ctx, after)
	first, _ := f.durable.GetAuction(ctx, a.ID)

	f.sweeper.Sweep(ctx, after.Add(time.Minute))
	second, _ := f.durable.GetAuction(ctx, a.ID)

	if second.Status != auction.StatusSettled {
		t.Fatal("still settled")
	}
	if *second.WinnerID != *first.WinnerID || *second.WinningPrice != *first.WinningPrice {
		t.Fatalf("second sweep changed the outcome: %+v vs %+v", second, first)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatal("second sweep must not rewrite the settled record")
	}
}

func TestSweep_SkipsUnexpiredAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := f.openAuction(t, 100, time.Hour)
	f.sweeper.Sweep(ctx, time.Now())

	a, _ := f.durable.GetAuction(ctx, live.ID)
	if a.Status != auction.StatusOpen {
		t.Fatal("unexpired auction must stay open")
	}
}

func TestSweep_ContinuesPastFailingAuction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := f.openAuction(t, 100, time.Hour)
	good := f.openAuction(t, 100, 2*time.Hour)
	alice := f.addUser(t, "alice")
	if _, err := f.bids.PlaceBid(ctx, good.ID, 150, alice.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}

	// Poison one auction's ephemeral state so its settlement errors out.
	if err := f.ephemeral.Set(ctx, keys.HighestBid(bad.ID), "not-a-number"); err != nil {
		t.Fatalf("seed bad state: %v", err)
	}
	if err := f.ephemeral.Set(ctx, keys.HighestBidder(bad.ID), alice.ID); err != nil {
		t.Fatalf("seed bad state: %v", err)
	}

	f.sweeper.Sweep(ctx, good.EndTime.Add(time.Minute))

	badA, _ := f.durable.GetAuction(ctx, bad.ID)
	if badA.Status != auction.StatusOpen {
		t.Fatal("failed settlement must leave the auction open for retry")
	}
	goodA, _ := f.durable.GetAuction(ctx, good.ID)
	if goodA.Status != auction.StatusSettled {
		t.Fatal("one failure must not abort the rest of the sweep")
	}
}

func TestSweep_BroadcastsFinalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	alice := f.addUser(t, "alice")
	if _, err := f.bids.PlaceBid(ctx, a.ID, 250, alice.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}
	before := f.published.count(keys.Topic(a.ID))

	f.sweeper.Sweep(ctx, a.EndTime.Add(time.Minute))

	if f.published.count(keys.Topic(a.ID)) != before+1 {
		t.Fatal("settlement must broadcast the final state")
	}
	snap, ok := f.published.last(keys.Topic(a.ID))
	if !ok {
		t.Fatal("no snapshot published")
	}
	// The ephemeral keys are gone; the snapshot must come from the durable
	// outcome.
	if snap.CurrentHighestBid != 250 || snap.HighestBidderName != "alice" {
		t.Fatalf("final snapshot %+v, want 250/alice", snap)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, -time.Minute) // already expired
	f.sweeper.WithInterval(20 * time.Millisecond)

	if err := f.sweeper.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		settled, _ := f.durable.GetAuction(ctx, a.ID)
		if settled.Status == auction.StatusSettled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper never settled the expired auction")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.sweeper.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop is idempotent.
	if err := f.sweeper.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

// bidding after settlement is covered end to end here: the engine must see
// the settled status and refuse without touching the ephemeral store.
func TestSweep_ThenBidFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.openAuction(t, 100, time.Hour)
	alice := f.addUser(t, "alice")
	if _, err := f.bids.PlaceBid(ctx, a.ID, 150, alice.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.sweeper.Sweep(ctx, a.EndTime.Add(time.Minute))

	_, err := f.bids.PlaceBid(ctx, a.ID, 500, alice.ID)
	if !errors.Is(err, bidding.ErrAuctionClosed) {
		t.Fatalf("bid after settlement: got %v, want ErrAuctionClosed", err)
	}
	if len(f.ephemeral.Keys()) != 0 {
		t.Fatalf("post-settlement bid must not recreate ephemeral state, got %v", f.ephemeral.Keys())
	}
}
