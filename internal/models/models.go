package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Money is a decimal amount in an ISO 4217 currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Endpoint is one end of a flight segment.
type Endpoint struct {
	Airport string `json:"airport"` // IATA code
	Time    string `json:"time"`    // local ISO-8601 timestamp as returned upstream
}

// Segment is a single leg flown by one carrier.
type Segment struct {
	Departure    Endpoint `json:"departure"`
	Arrival      Endpoint `json:"arrival"`
	Carrier      string   `json:"carrier"`
	FlightNumber string   `json:"flightNumber"`
	Duration     string   `json:"duration"` // ISO-8601 duration, e.g. PT7H25M
}

// Itinerary is the outbound or return part of an offer.
type Itinerary struct {
	Duration string    `json:"duration"`
	Segments []Segment `json:"segments"`
}

// FlightOffer is a priced, bookable flight itinerary.
type FlightOffer struct {
	ID                    string      `json:"id"`
	Price                 Money       `json:"price"`
	Itineraries           []Itinerary `json:"itineraries"`
	NumberOfBookableSeats int         `json:"numberOfBookableSeats"`
}

// FlightDeal is a flexible-destination fare departing soon from an origin.
type FlightDeal struct {
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate"`
	ReturnDate    string `json:"returnDate,omitempty"`
	Price         Money  `json:"price"`
	Type          string `json:"type,omitempty"`
}

// ListingLocation is where a lodging listing is.
type ListingLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// LodgingListing is a priced short-term rental property.
type LodgingListing struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	NightlyRate  Money           `json:"nightlyRate"`
	TotalPrice   Money           `json:"totalPrice"`
	Rating       *float64        `json:"rating,omitempty"` // 0-5
	ReviewsCount int             `json:"reviewsCount"`
	Images       []string        `json:"images"`
	Location     ListingLocation `json:"location"`
	Amenities    []string        `json:"amenities"`
	Beds         int             `json:"beds"`
	Bedrooms     int             `json:"bedrooms"`
	Bathrooms    float64         `json:"bathrooms"`
	URL          string          `json:"url"`
	ValueScore   *float64        `json:"valueScore,omitempty"`
}

// BudgetBreakdown is how a trip budget was split.
type BudgetBreakdown struct {
	Total         float64 `json:"total"`
	Flights       float64 `json:"flights"`
	Accommodation float64 `json:"accommodation"`
	Estimated     float64 `json:"estimated"`
}

// TripProposal is the result of planning a trip. It carries its own success
// flag and is written to clients without an envelope.
type TripProposal struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message,omitempty"`
	Budget           *BudgetBreakdown `json:"budget,omitempty"`
	Nights           int              `json:"nights,omitempty"`
	Flights          []FlightOffer    `json:"flights,omitempty"`
	Accommodations   []LodgingListing `json:"accommodations,omitempty"`
	AIRecommendation string           `json:"aiRecommendation,omitempty"`
}

// Preferences are free-form traveller preferences passed to the narrator.
type Preferences map[string]any

// FlexNumber accepts a JSON number or a JSON string holding a number.
// Parsing into a float is left to the validation package so that malformed
// input can be reported per field.
type FlexNumber struct {
	Raw string
	Set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = FlexNumber{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*n = FlexNumber{Raw: s, Set: s != ""}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected number or numeric string: %w", err)
	}
	*n = FlexNumber{Raw: num.String(), Set: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Raw)
}

// Num builds a FlexNumber from a literal, mostly for tests and clients.
func Num(v float64) FlexNumber {
	return FlexNumber{Raw: fmt.Sprintf("%g", v), Set: true}
}

// FlightSearchRequest is the body of POST /flights/search.
type FlightSearchRequest struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureDate string     `json:"departureDate"`
	ReturnDate    string     `json:"returnDate,omitempty"`
	Passengers    FlexNumber `json:"passengers"`
}

// FlightsByPriceRequest is the body of POST /flights/by-price.
type FlightsByPriceRequest struct {
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	DepartureDate string     `json:"departureDate"`
	MaxPrice      FlexNumber `json:"maxPrice"`
}

// AccommodationSearchRequest is the body of POST /accommodation/search.
type AccommodationSearchRequest struct {
	Location string     `json:"location"`
	CheckIn  string     `json:"checkIn"`
	CheckOut string     `json:"checkOut"`
	Guests   FlexNumber `json:"guests"`
	MaxPrice FlexNumber `json:"maxPrice"`
}

// AccommodationDealsRequest is the body of POST /accommodation/deals.
type AccommodationDealsRequest struct {
	Location  string     `json:"location"`
	CheckIn   string     `json:"checkIn"`
	CheckOut  string     `json:"checkOut"`
	Guests    FlexNumber `json:"guests"`
	MaxBudget FlexNumber `json:"maxBudget"`
}

// TripPlanRequest is the body of POST /trip-planner/plan.
type TripPlanRequest struct {
	Origin        string      `json:"origin"`
	Destination   string      `json:"destination"`
	DepartureDate string      `json:"departureDate"`
	ReturnDate    string      `json:"returnDate,omitempty"`
	Budget        FlexNumber  `json:"budget"`
	Passengers    FlexNumber  `json:"passengers"`
	Preferences   Preferences `json:"preferences,omitempty"`
}

// ChatRequest is the body of POST /trip-planner/chat.
type ChatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ListResponse is the {success, count, data} envelope.
type ListResponse[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    []T  `json:"data"`
}

// ChatResponse is the response of POST /trip-planner/chat.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
