package app

import (
	"strconv"
	"strings"
	"time"

	"hotel_proxy/internal/domain"
)

/********** alias registries (single source of truth) **********/

var cardAliases = map[string][]string{
	"code":        {"HotelCode", "hotelCode", "Code", "code"},
	"images":      {"Images", "HotelImages", "images", "imageUrls"},
	"image":       {"Image", "HotelPicture", "ImageUrl", "imageUrl", "image"},
	"amenities":   {"HotelFacilities", "Facilities", "facilities", "Amenities", "amenities"},
	"rating":      {"TripAdvisorRating", "TripAdvisor.Rating", "Rating", "rating", "HotelRating"},
	"reviews":     {"TripAdvisorReviewCount", "TripAdvisor.ReviewCount", "ReviewCount", "Reviews", "reviews"},
	"description": {"Description", "HotelDescription", "description"},
}

var roomAliases = map[string][]string{
	"rooms":       {"Rooms", "RoomDetails", "rooms"},
	"name":        {"RoomName", "Name", "name", "RoomType"},
	"description": {"RoomDescription", "Description", "description"},
	"amenities":   {"Amenities", "RoomFacilities", "Facilities", "amenities"},
	"images":      {"imageURL", "Images", "RoomImages", "images"},
	"size":        {"RoomSize", "RoomSizeSqm", "roomSize"},
	"beds":        {"BedTypes", "bedTypes"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string (or a number rendered as string) at path, or "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstIntFlexible: int from several paths (float64/int/string).
func firstIntFlexible(m map[string]any, paths ...string) *int {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			x := int(v)
			return &x
		case int:
			x := v
			return &x
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				return &n
			}
		}
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {url/src/name}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if s := strings.TrimSpace(t); s != "" {
						out = append(out, s)
					}
				case map[string]any:
					for _, f := range []string{"url", "Url", "src", "name", "Name"} {
						if u, ok := t[f].(string); ok && u != "" {
							out = append(out, u)
							break
						}
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

/********** card info **********/

// ratingText buckets a numeric rating. A missing rating has no text.
func ratingText(r *float64) *string {
	if r == nil {
		return nil
	}
	var s string
	switch {
	case *r >= 4.5:
		s = "Excellent"
	case *r >= 4:
		s = "Very Good"
	case *r >= 3.5:
		s = "Good"
	default:
		s = "Fair"
	}
	return &s
}

func detailCode(d domain.HotelDetail) domain.HotelCode {
	return domain.HotelCode(firstNonEmptyAlias(d, cardAliases, "code"))
}

// mapCardInfo derives the cacheable card summary from one hotel detail.
func mapCardInfo(d domain.HotelDetail, now time.Time) domain.HotelCardInfo {
	ci := domain.HotelCardInfo{
		HotelCode:   detailCode(d),
		Description: firstNonEmptyAlias(d, cardAliases, "description"),
		LastUpdated: now.UTC(),
	}

	// Image: first of the image array, else the single picture field.
	if imgs := firstSliceStrings(d, cardAliases["images"]...); len(imgs) > 0 {
		ci.ImageURL = imgs[0]
	} else {
		ci.ImageURL = firstNonEmptyAlias(d, cardAliases, "image")
	}

	amen := firstSliceStrings(d, cardAliases["amenities"]...)
	if len(amen) > domain.MaxAmenities {
		amen = amen[:domain.MaxAmenities]
	}
	if amen == nil {
		amen = []string{}
	}
	ci.Amenities = amen

	ci.Rating = getFloatFlexible(d, cardAliases["rating"]...)
	ci.Reviews = firstIntFlexible(d, cardAliases["reviews"]...)
	ci.RatingText = ratingText(ci.Rating)
	return ci
}

/********** catalog rooms **********/

func mapCatalogRooms(d domain.HotelDetail) []domain.CatalogRoom {
	var raw []any
	for _, p := range roomAliases["rooms"] {
		if rs, ok := lookupAny(d, p).([]any); ok {
			raw = rs
			break
		}
	}
	out := make([]domain.CatalogRoom, 0, len(raw))
	for _, it := range raw {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name := firstNonEmptyAlias(m, roomAliases, "name")
		if name == "" {
			continue
		}
		out = append(out, domain.CatalogRoom{
			Name:        name,
			Description: firstNonEmptyAlias(m, roomAliases, "description"),
			Amenities:   firstSliceStrings(m, roomAliases["amenities"]...),
			Images:      firstSliceStrings(m, roomAliases["images"]...),
			SizeSqm:     getFloatFlexible(m, roomAliases["size"]...),
			BedTypes:    firstSliceStrings(m, roomAliases["beds"]...),
		})
	}
	return out
}

// stubFromDetail builds a list-style stub when only a detail payload exists.
func stubFromDetail(d domain.HotelDetail) domain.HotelStub {
	return domain.HotelStub{
		HotelCode:   detailCode(d),
		HotelName:   firstNonEmptyAlias(d, map[string][]string{"n": {"HotelName", "Name", "name"}}, "n"),
		Address:     firstNonEmptyAlias(d, map[string][]string{"a": {"Address", "HotelAddress", "address"}}, "a"),
		HotelRating: firstNonEmptyAlias(d, map[string][]string{"r": {"HotelRating", "StarRating"}}, "r"),
		CityName:    lookupStr(d, "CityName"),
		CountryCode: lookupStr(d, "CountryCode"),
		Description: firstNonEmptyAlias(d, cardAliases, "description"),
		Facilities:  firstSliceStrings(d, cardAliases["amenities"]...),
	}
}
