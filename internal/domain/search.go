package domain

import "encoding/json"

type PaxRoom struct {
	Adults       int   `json:"Adults"`
	Children     int   `json:"Children"`
	ChildrenAges []int `json:"ChildrenAges"`
}

type DateRange struct {
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
}

// SearchRequest is a pricing query for a batch of hotel codes.
type SearchRequest struct {
	DateRange
	HotelCodes         []HotelCode `json:"hotelCodes"`
	GuestNationality   string      `json:"guestNationality"`
	NoOfRooms          int         `json:"noOfRooms"`
	PaxRooms           []PaxRoom   `json:"paxRooms"`
	IsDetailedResponse bool        `json:"isDetailedResponse"`
}

// LiveRoom is one bookable room option returned by a pricing search.
type LiveRoom struct {
	Name          []string        `json:"Name"`
	BookingCode   string          `json:"BookingCode"`
	Inclusion     string          `json:"Inclusion,omitempty"`
	MealType      string          `json:"MealType,omitempty"`
	TotalFare     float64         `json:"TotalFare"`
	TotalTax      float64         `json:"TotalTax"`
	IsRefundable  bool            `json:"IsRefundable"`
	RoomPromotion []string        `json:"RoomPromotion,omitempty"`
	Cancel        json.RawMessage `json:"CancelPolicies,omitempty"`
}

// DisplayName joins the per-occupancy names the oracle returns.
func (r LiveRoom) DisplayName() string {
	if len(r.Name) == 0 {
		return ""
	}
	return r.Name[0]
}

// HotelResult is the live, never-cached pricing record for one hotel.
type HotelResult struct {
	HotelCode    HotelCode  `json:"HotelCode"`
	Currency     string     `json:"Currency"`
	Rooms        []LiveRoom `json:"Rooms"`
	StarRating   string     `json:"StarRating,omitempty"`
	HotelName    string     `json:"HotelName,omitempty"`
	HotelAddress string     `json:"HotelAddress,omitempty"`
	HotelPicture string     `json:"HotelPicture,omitempty"`
	Description  string     `json:"Description,omitempty"`
}

type Status struct {
	Code        int    `json:"Code"`
	Description string `json:"Description"`
}

// SearchResponse keeps the raw oracle body next to the decoded results so the
// proxy can return it untouched.
type SearchResponse struct {
	Status      Status          `json:"Status"`
	HotelResult []HotelResult   `json:"HotelResult"`
	Raw         json.RawMessage `json:"-"`
}

// CatalogRoom is the static room-type metadata from hotel details.
type CatalogRoom struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Images      []string `json:"images,omitempty"`
	SizeSqm     *float64 `json:"sizeSqm,omitempty"`
	BedTypes    []string `json:"bedTypes,omitempty"`
}

// MergedRoom is a catalog room joined with its live availability. Pricing is
// nil when the room is not bookable for the requested dates.
type MergedRoom struct {
	CatalogRoom
	Available bool      `json:"available"`
	Unmatched bool      `json:"unmatched,omitempty"`
	Pricing   *LiveRoom `json:"pricing"`
}

// MergedHotel is the view model built from the city list stub, cached card
// info and the live search result.
type MergedHotel struct {
	HotelCode   HotelCode  `json:"HotelCode"`
	HotelName   string     `json:"HotelName"`
	Address     string     `json:"Address,omitempty"`
	ImageURL    string     `json:"ImageUrl,omitempty"`
	Description string     `json:"Description,omitempty"`
	Amenities   []string   `json:"Amenities"`
	Rating      *float64   `json:"Rating"`
	Reviews     *int       `json:"Reviews"`
	RatingText  *string    `json:"RatingText"`
	StarRating  string     `json:"StarRating,omitempty"`
	Currency    string     `json:"Currency"`
	MinPrice    float64    `json:"MinPrice"`
	Rooms       []LiveRoom `json:"Rooms"`
}
