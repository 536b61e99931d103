package rapidapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"travel-agent-api/internal/lodging"
	"travel-agent-api/internal/models"
)

// Config holds the RapidAPI listing provider settings.
type Config struct {
	APIKey  string
	Host    string
	BaseURL string
	Timeout time.Duration
}

// Client queries a RapidAPI short-term rental listing API.
type Client struct {
	apiKey     string
	host       string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		host:    cfg.Host,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SearchLocation resolves a free-text location to the provider's location id.
// Only the first match is used.
func (c *Client) SearchLocation(ctx context.Context, location string) (string, error) {
	q := url.Values{}
	q.Set("location", location)

	var matches []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := c.get(ctx, "/search-location", q, &matches); err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", lodging.ErrLocationNotFound
	}

	id := rawID(matches[0].ID)
	if id == "" {
		return "", lodging.ErrLocationNotFound
	}
	return id, nil
}

// SearchListings lists priced listings for a resolved location.
func (c *Client) SearchListings(ctx context.Context, params lodging.ListingSearch) ([]models.LodgingListing, error) {
	q := url.Values{}
	q.Set("locationId", params.LocationID)
	q.Set("checkIn", params.CheckIn)
	q.Set("checkOut", params.CheckOut)
	q.Set("guests", strconv.Itoa(params.Guests))
	q.Set("currency", params.Currency)

	var body struct {
		Results []listingDTO `json:"results"`
	}
	if err := c.get(ctx, "/search-listings", q, &body); err != nil {
		return nil, err
	}

	listings := make([]models.LodgingListing, 0, len(body.Results))
	for _, r := range body.Results {
		listings = append(listings, r.toModel())
	}
	return listings, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type listingDTO struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Price struct {
		Rate     models.FlexNumber `json:"rate"`
		Total    models.FlexNumber `json:"total"`
		Currency string            `json:"currency"`
	} `json:"price"`
	Rating       models.FlexNumber `json:"rating"`
	ReviewsCount int               `json:"reviewsCount"`
	Images       []string          `json:"images"`
	City         string            `json:"city"`
	Country      string            `json:"country"`
	Amenities    []string          `json:"amenities"`
	Beds         int               `json:"beds"`
	Bedrooms     int               `json:"bedrooms"`
	Bathrooms    float64           `json:"bathrooms"`
	URL          string            `json:"url"`
}

func (l listingDTO) toModel() models.LodgingListing {
	currency := l.Price.Currency
	if currency == "" {
		currency = "USD"
	}

	listing := models.LodgingListing{
		ID:           rawID(l.ID),
		Name:         l.Name,
		Type:         l.Type,
		NightlyRate:  models.Money{Amount: number(l.Price.Rate), Currency: currency},
		TotalPrice:   models.Money{Amount: number(l.Price.Total), Currency: currency},
		ReviewsCount: l.ReviewsCount,
		Images:       l.Images,
		Location:     models.ListingLocation{City: l.City, Country: l.Country},
		Amenities:    l.Amenities,
		Beds:         l.Beds,
		Bedrooms:     l.Bedrooms,
		Bathrooms:    l.Bathrooms,
		URL:          l.URL,
	}
	if listing.Images == nil {
		listing.Images = []string{}
	}
	if listing.Amenities == nil {
		listing.Amenities = []string{}
	}
	if l.Rating.Set {
		if v, err := strconv.ParseFloat(l.Rating.Raw, 64); err == nil && finite(v) {
			listing.Rating = &v
		}
	}
	return listing
}

// number parses an upstream amount, treating missing, malformed or
// non-finite values as 0.
func number(n models.FlexNumber) float64 {
	if !n.Set {
		return 0
	}
	v, err := strconv.ParseFloat(n.Raw, 64)
	if err != nil || !finite(v) {
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// rawID renders a JSON string or number id as a string.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
