package search

import (
	"sort"
	"strings"
	"unicode"

	"hotel_proxy/internal/domain"
)

// DefaultPrefixLen is how many normalized characters two room names must
// share to count as the same room type when they differ only in a suffix.
const DefaultPrefixLen = 20

// RoomMatcher pairs a catalog room name with one of the live room names.
// Match returns the index into live, or -1 when nothing fits.
type RoomMatcher interface {
	Match(catalogName string, live []string) int
}

// PrefixMatcher tries an exact match on normalized names first, then the
// first live room sharing the leading N normalized characters.
type PrefixMatcher struct {
	N int
}

func (m PrefixMatcher) Match(catalogName string, live []string) int {
	n := m.N
	if n <= 0 {
		n = DefaultPrefixLen
	}
	want := normalizeName(catalogName)
	if want == "" {
		return -1
	}
	prefix := cut(want, n)
	candidate := -1
	for i, name := range live {
		norm := normalizeName(name)
		if norm == want {
			return i
		}
		if candidate < 0 && cut(norm, n) == prefix {
			candidate = i
		}
	}
	return candidate
}

// normalizeName lowercases and drops everything that is not a letter or digit.
func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// MergeRooms joins catalog room types with the live rooms priced for a stay.
//
// Catalog rooms that found a live counterpart come first, unmatched ones
// follow with Available=false and no pricing. Live rooms no catalog room
// claimed are put in front, flagged Unmatched, so nothing bookable is lost.
func MergeRooms(catalog []domain.CatalogRoom, live []domain.LiveRoom, m RoomMatcher) []domain.MergedRoom {
	if m == nil {
		m = PrefixMatcher{N: DefaultPrefixLen}
	}
	if len(catalog) == 0 {
		out := make([]domain.MergedRoom, 0, len(live))
		for i := range live {
			out = append(out, liveOnly(live[i], false))
		}
		return out
	}

	names := make([]string, len(live))
	for i, r := range live {
		names[i] = r.DisplayName()
	}
	consumed := make([]bool, len(live))

	merged := make([]domain.MergedRoom, 0, len(catalog))
	for _, c := range catalog {
		mr := domain.MergedRoom{CatalogRoom: c}
		if i := m.Match(c.Name, names); i >= 0 && i < len(live) {
			lr := live[i]
			mr.Available = true
			mr.Pricing = &lr
			consumed[i] = true
		}
		merged = append(merged, mr)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Available && !merged[j].Available
	})

	var extra []domain.MergedRoom
	for i := range live {
		if !consumed[i] {
			extra = append(extra, liveOnly(live[i], true))
		}
	}
	return append(extra, merged...)
}

func liveOnly(lr domain.LiveRoom, unmatched bool) domain.MergedRoom {
	return domain.MergedRoom{
		CatalogRoom: domain.CatalogRoom{Name: lr.DisplayName()},
		Available:   true,
		Unmatched:   unmatched,
		Pricing:     &lr,
	}
}

// AvailableCount reports how many merged rooms can be booked.
func AvailableCount(rooms []domain.MergedRoom) int {
	n := 0
	for _, r := range rooms {
		if r.Available {
			n++
		}
	}
	return n
}
