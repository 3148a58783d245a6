package domain

import "time"

type Country struct {
	Code string `json:"Code"`
	Name string `json:"Name"`
}

type City struct {
	Code string `json:"Code"`
	Name string `json:"Name"`
}

// HotelStub is one row of a city's hotel list.
type HotelStub struct {
	HotelCode   HotelCode `json:"HotelCode"`
	HotelName   string    `json:"HotelName"`
	Address     string    `json:"Address,omitempty"`
	HotelRating string    `json:"HotelRating,omitempty"`
	Latitude    string    `json:"Latitude,omitempty"`
	Longitude   string    `json:"Longitude,omitempty"`
	CityName    string    `json:"CityName,omitempty"`
	CountryCode string    `json:"CountryCode,omitempty"`
	ImageURL    string    `json:"ImageUrl,omitempty"`
	Description string    `json:"Description,omitempty"`
	Facilities  []string  `json:"HotelFacilities,omitempty"`
}

// HotelDetail is the oracle's static detail payload for one hotel. It is kept
// as a loose map because the oracle adds fields without notice.
type HotelDetail map[string]any

// HotelCardInfo is the derived per-hotel summary cached under cardinfo:{code}.
type HotelCardInfo struct {
	HotelCode   HotelCode `json:"hotelCode"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Amenities   []string  `json:"amenities"`
	Rating      *float64  `json:"rating"`
	Reviews     *int      `json:"reviews"`
	RatingText  *string   `json:"ratingText"`
	Description string    `json:"description,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// MaxAmenities bounds HotelCardInfo.Amenities.
const MaxAmenities = 10
