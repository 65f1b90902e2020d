package keys

import "testing"

func TestKeyLayout(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"highest bid", HighestBid("42"), "auction:42:highestBid"},
		{"highest bidder", HighestBidder("42"), "auction:42:highestBidder"},
		{"bidders", Bidders("42"), "auction:42:bidders"},
		{"lock", Lock("42"), "auction_lock:42"},
		{"topic", Topic("42"), "/topic/auctions/42"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestAllCoversStateKeys(t *testing.T) {
	all := All("7")
	if len(all) != 3 {
		t.Fatalf("expected 3 state keys, got %d", len(all))
	}
	want := map[string]bool{
		HighestBid("7"):    true,
		HighestBidder("7"): true,
		Bidders("7"):       true,
	}
	for _, k := range all {
		if !want[k] {
			t.Fatalf("unexpected key %q", k)
		}
	}
}
