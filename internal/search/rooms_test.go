package search

import (
	"testing"

	"hotel_proxy/internal/domain"
)

func live(name string, fare float64) domain.LiveRoom {
	return domain.LiveRoom{Name: []string{name}, BookingCode: "BC-" + name, TotalFare: fare}
}

func TestMergeRooms_ExactMatch(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Deluxe Room"}},
		[]domain.LiveRoom{live("Deluxe Room", 120)},
		nil,
	)
	if len(got) != 1 {
		t.Fatalf("want 1 room, got %d: %+v", len(got), got)
	}
	if !got[0].Available || got[0].Pricing == nil || got[0].Pricing.TotalFare != 120 {
		t.Fatalf("exact match not paired: %+v", got[0])
	}
	if got[0].Unmatched {
		t.Fatalf("matched room flagged unmatched")
	}
}

func TestMergeRooms_NormalizesCaseAndPunctuation(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Deluxe-Room, King"}},
		[]domain.LiveRoom{live("deluxe room king", 90)},
		PrefixMatcher{N: 20},
	)
	if len(got) != 1 || !got[0].Available {
		t.Fatalf("normalized names should match: %+v", got)
	}
}

func TestMergeRooms_PrefixFallback(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Deluxe Room With Balcony View Extra"}},
		[]domain.LiveRoom{live("Deluxe Room With Balcony View Something Else", 200)},
		PrefixMatcher{N: 20},
	)
	if len(got) != 1 {
		t.Fatalf("want 1 room, got %d: %+v", len(got), got)
	}
	if !got[0].Available || got[0].Pricing == nil || got[0].Pricing.TotalFare != 200 {
		t.Fatalf("prefix match not paired: %+v", got[0])
	}
}

func TestMergeRooms_PrefixFirstCandidateWins(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Superior Double Room King Garden"}},
		[]domain.LiveRoom{
			live("Superior Double Room King Sea", 100),
			live("Superior Double Room King City", 110),
		},
		nil,
	)
	var matched *domain.MergedRoom
	for i := range got {
		if !got[i].Unmatched {
			matched = &got[i]
		}
	}
	if matched == nil || matched.Pricing == nil || matched.Pricing.TotalFare != 100 {
		t.Fatalf("first prefix candidate should win: %+v", got)
	}
}

func TestMergeRooms_UnmatchedCatalogRoomUnavailable(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Presidential Suite"}, {Name: "Standard Room"}},
		[]domain.LiveRoom{live("Standard Room", 80)},
		nil,
	)
	if len(got) != 2 {
		t.Fatalf("want 2 rooms, got %d", len(got))
	}
	// available first, stable otherwise
	if got[0].Name != "Standard Room" || !got[0].Available {
		t.Fatalf("available room should sort first: %+v", got)
	}
	if got[1].Name != "Presidential Suite" || got[1].Available || got[1].Pricing != nil {
		t.Fatalf("unmatched catalog room must be unavailable with nil pricing: %+v", got[1])
	}
}

func TestMergeRooms_UnmatchedLiveRoomPrepended(t *testing.T) {
	got := MergeRooms(
		[]domain.CatalogRoom{{Name: "Standard Room"}},
		[]domain.LiveRoom{live("Standard Room", 80), live("Family Bungalow", 300)},
		nil,
	)
	if len(got) != 2 {
		t.Fatalf("want 2 rooms, got %d: %+v", len(got), got)
	}
	if got[0].Name != "Family Bungalow" || !got[0].Available || !got[0].Unmatched {
		t.Fatalf("unmatched live room should lead and be available: %+v", got[0])
	}
	if got[1].Name != "Standard Room" || !got[1].Available {
		t.Fatalf("matched room should follow: %+v", got[1])
	}
}

func TestMergeRooms_LiveOnly(t *testing.T) {
	got := MergeRooms(nil, []domain.LiveRoom{live("A", 1), live("B", 2)}, nil)
	if len(got) != 2 || !got[0].Available || !got[1].Available {
		t.Fatalf("live rooms without catalog should all be available: %+v", got)
	}
	if AvailableCount(got) != 2 {
		t.Fatalf("AvailableCount = %d", AvailableCount(got))
	}
}

func TestMergeRooms_BothEmpty(t *testing.T) {
	got := MergeRooms(nil, nil, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Deluxe Room":         "deluxeroom",
		"  KING-bed (2 pax) ": "kingbed2pax",
		"":                    "",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
