package lodging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"travel-agent-api/internal/cache"
	"travel-agent-api/internal/metrics"
	"travel-agent-api/internal/models"
)

const (
	// DefaultGuests applies when a query does not say how many guests.
	DefaultGuests = 2
	// DefaultDealMaxPrice is the nightly cap BestValue uses when none is given.
	DefaultDealMaxPrice = 200.0
	// MaxDeals bounds the BestValue result.
	MaxDeals = 20
)

// ErrLocationNotFound is returned by a Client when a location has no match.
var ErrLocationNotFound = errors.New("location not found")

// ListingSearch is an upstream listing query for a resolved location.
type ListingSearch struct {
	LocationID string
	CheckIn    string
	CheckOut   string
	Guests     int
	Currency   string
}

// Client is the upstream lodging provider.
type Client interface {
	SearchLocation(ctx context.Context, location string) (string, error)
	SearchListings(ctx context.Context, params ListingSearch) ([]models.LodgingListing, error)
}

// Query describes a lodging search. MaxPrice caps the nightly rate when set.
type Query struct {
	Location string
	CheckIn  string
	CheckOut string
	Guests   int
	MaxPrice *float64
}

// CacheKey returns the key under which a lodging search is cached.
func (q Query) CacheKey() string {
	maxPrice := "null"
	if q.MaxPrice != nil {
		maxPrice = strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64)
	}
	return fmt.Sprintf("accommodation_%s_%s_%s_%d_%s", q.Location, q.CheckIn, q.CheckOut, q.Guests, maxPrice)
}

// Service answers lodging queries. Upstream failures are masked with sample
// listings so callers always get something to show.
type Service struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService creates a new lodging service.
func NewService(client Client, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Search returns listings for the query. It never fails: any upstream error
// yields the fallback listings, filtered by MaxPrice. A non-positive MaxPrice
// yields no listings and no upstream call.
func (s *Service) Search(ctx context.Context, q Query) ([]models.LodgingListing, error) {
	if q.Guests < 1 {
		q.Guests = DefaultGuests
	}
	if q.MaxPrice != nil && *q.MaxPrice <= 0 {
		return []models.LodgingListing{}, nil
	}

	key := q.CacheKey()

	var cached []models.LodgingListing
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		metrics.CacheLookup("lodging", true)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("lodging cache read failed", "key", key, "error", err)
	}
	metrics.CacheLookup("lodging", false)

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		listings, err := s.fetch(shared, q)
		if err != nil {
			return nil, err
		}
		if err := cache.SetJSON(shared, s.cache, key, listings, s.ttl); err != nil {
			s.logger.Warn("lodging cache write failed", "key", key, "error", err)
		}
		return listings, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The caller is gone; the shared search keeps running for the others.
		s.logger.Debug("lodging search abandoned by caller", "location", q.Location, "error", ctx.Err())
		return Fallback(q.Location, q.MaxPrice), nil
	}
	if err := res.Err; err != nil {
		metrics.UpstreamError(metrics.ProviderRapidAPI)
		metrics.LodgingFallback()
		s.logger.Warn("lodging search failed, serving sample listings",
			"location", q.Location,
			"check_in", q.CheckIn,
			"check_out", q.CheckOut,
			"error", err,
		)
		return Fallback(q.Location, q.MaxPrice), nil
	}

	return res.Val.([]models.LodgingListing), nil
}

func (s *Service) fetch(ctx context.Context, q Query) ([]models.LodgingListing, error) {
	locationID, err := s.client.SearchLocation(ctx, q.Location)
	if err != nil {
		return nil, err
	}

	listings, err := s.client.SearchListings(ctx, ListingSearch{
		LocationID: locationID,
		CheckIn:    q.CheckIn,
		CheckOut:   q.CheckOut,
		Guests:     q.Guests,
		Currency:   "USD",
	})
	if err != nil {
		return nil, err
	}

	return filterByRate(listings, q.MaxPrice), nil
}

// BestValue returns up to MaxDeals listings ordered by rating per dollar,
// best first. MaxPrice defaults to DefaultDealMaxPrice.
func (s *Service) BestValue(ctx context.Context, q Query) ([]models.LodgingListing, error) {
	if q.MaxPrice == nil {
		maxPrice := DefaultDealMaxPrice
		q.MaxPrice = &maxPrice
	}

	listings, err := s.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get accommodation deals: %w", err)
	}

	scored := make([]models.LodgingListing, len(listings))
	copy(scored, listings)
	for i := range scored {
		score := ValueScore(scored[i])
		scored[i].ValueScore = &score
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].ValueScore > *scored[j].ValueScore
	})

	if len(scored) > MaxDeals {
		scored = scored[:MaxDeals]
	}
	return scored, nil
}

// ValueScore is rating / max(rate, 1) * 100. Unrated listings score 0.
func ValueScore(l models.LodgingListing) float64 {
	if l.Rating == nil {
		return 0
	}
	return *l.Rating / math.Max(l.NightlyRate.Amount, 1) * 100
}

// Fallback returns the fixed sample listings for location, keeping only those
// within maxPrice when it is set.
func Fallback(location string, maxPrice *float64) []models.LodgingListing {
	rating := func(v float64) *float64 { return &v }

	sample := []models.LodgingListing{
		{
			ID:           "1",
			Name:         "Cozy Downtown Apartment",
			Type:         "Entire apartment",
			NightlyRate:  models.Money{Amount: 85, Currency: "USD"},
			TotalPrice:   models.Money{Amount: 595, Currency: "USD"},
			Rating:       rating(4.8),
			ReviewsCount: 124,
			Images:       []string{"https://via.placeholder.com/400x300"},
			Location:     models.ListingLocation{City: location, Country: "US"},
			Amenities:    []string{"WiFi", "Kitchen", "Air conditioning"},
			Beds:         2,
			Bedrooms:     1,
			Bathrooms:    1,
			URL:          "https://airbnb.com/example",
		},
		{
			ID:           "2",
			Name:         "Modern Studio with City View",
			Type:         "Studio",
			NightlyRate:  models.Money{Amount: 120, Currency: "USD"},
			TotalPrice:   models.Money{Amount: 840, Currency: "USD"},
			Rating:       rating(4.9),
			ReviewsCount: 89,
			Images:       []string{"https://via.placeholder.com/400x300"},
			Location:     models.ListingLocation{City: location, Country: "US"},
			Amenities:    []string{"WiFi", "Gym", "Pool"},
			Beds:         1,
			Bedrooms:     1,
			Bathrooms:    1,
			URL:          "https://airbnb.com/example",
		},
	}

	return filterByRate(sample, maxPrice)
}

func filterByRate(listings []models.LodgingListing, maxPrice *float64) []models.LodgingListing {
	out := make([]models.LodgingListing, 0, len(listings))
	for _, l := range listings {
		if l.NightlyRate.Amount < 0 {
			continue
		}
		if maxPrice != nil && l.NightlyRate.Amount > *maxPrice {
			continue
		}
		out = append(out, l)
	}
	return out
}
