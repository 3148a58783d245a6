package search

import (
	"strconv"
	"strings"

	"hotel_proxy/internal/domain"
)

// Source names where a hotel field came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceStatic Source = "static"
	SourceLive   Source = "live"
)

// Precedence lists sources from strongest to weakest for overlapping fields.
var Precedence = []Source{SourceCache, SourceStatic, SourceLive}

// Layer is one source's view of the fields several sources can supply.
type Layer struct {
	Source      Source
	Name        string
	Address     string
	ImageURL    string
	Description string
	Amenities   []string
	Rating      *float64
}

// Resolve takes each field from the highest-precedence layer that has it.
// Layers whose source is not in Precedence are ignored.
func Resolve(layers ...Layer) Layer {
	ordered := make([]Layer, 0, len(layers))
	for _, src := range Precedence {
		for _, l := range layers {
			if l.Source == src {
				ordered = append(ordered, l)
			}
		}
	}
	return Layer{
		Name:        pick(ordered, func(l Layer) (string, bool) { return l.Name, l.Name != "" }),
		Address:     pick(ordered, func(l Layer) (string, bool) { return l.Address, l.Address != "" }),
		ImageURL:    pick(ordered, func(l Layer) (string, bool) { return l.ImageURL, l.ImageURL != "" }),
		Description: pick(ordered, func(l Layer) (string, bool) { return l.Description, l.Description != "" }),
		Amenities:   pick(ordered, func(l Layer) ([]string, bool) { return l.Amenities, len(l.Amenities) > 0 }),
		Rating:      pick(ordered, func(l Layer) (*float64, bool) { return l.Rating, l.Rating != nil }),
	}
}

func pick[T any](layers []Layer, get func(Layer) (T, bool)) T {
	for _, l := range layers {
		if v, ok := get(l); ok {
			return v
		}
	}
	var zero T
	return zero
}

// MergeHotel builds the view model for one bookable hotel. stub and card may
// be nil; rooms and pricing always come from the live result.
func MergeHotel(stub *domain.HotelStub, card *domain.HotelCardInfo, res domain.HotelResult) domain.MergedHotel {
	layers := []Layer{{
		Source:      SourceLive,
		Name:        res.HotelName,
		Address:     res.HotelAddress,
		ImageURL:    res.HotelPicture,
		Description: res.Description,
		Rating:      parseStars(res.StarRating),
	}}
	if stub != nil {
		layers = append(layers, Layer{
			Source:      SourceStatic,
			Name:        stub.HotelName,
			Address:     stub.Address,
			ImageURL:    stub.ImageURL,
			Description: stub.Description,
			Amenities:   stub.Facilities,
			Rating:      parseStars(stub.HotelRating),
		})
	}
	if card != nil {
		layers = append(layers, Layer{
			Source:      SourceCache,
			ImageURL:    card.ImageURL,
			Description: card.Description,
			Amenities:   card.Amenities,
			Rating:      card.Rating,
		})
	}
	f := Resolve(layers...)

	h := domain.MergedHotel{
		HotelCode:   res.HotelCode,
		HotelName:   f.Name,
		Address:     f.Address,
		ImageURL:    f.ImageURL,
		Description: f.Description,
		Amenities:   f.Amenities,
		Rating:      f.Rating,
		StarRating:  res.StarRating,
		Currency:    res.Currency,
		Rooms:       res.Rooms,
		MinPrice:    minFare(res.Rooms),
	}
	if h.Amenities == nil {
		h.Amenities = []string{}
	}
	if h.StarRating == "" && stub != nil {
		h.StarRating = stub.HotelRating
	}
	if card != nil {
		h.Reviews = card.Reviews
		h.RatingText = card.RatingText
	}
	return h
}

func minFare(rooms []domain.LiveRoom) float64 {
	var m float64
	for i, r := range rooms {
		if i == 0 || r.TotalFare < m {
			m = r.TotalFare
		}
	}
	return m
}

var starWords = map[string]float64{
	"onestar": 1, "twostar": 2, "threestar": 3, "fourstar": 4, "fivestar": 5,
}

// parseStars reads "4", "4.5" or the oracle's "FourStar" form.
func parseStars(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return &f
	}
	if f, ok := starWords[strings.ToLower(s)]; ok {
		return &f
	}
	return nil
}
