package flights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"travel-agent-api/internal/cache"
	"travel-agent-api/internal/metrics"
	"travel-agent-api/internal/models"
	"travel-agent-api/internal/validation"
)

const (
	// MaxOffers is the number of offers requested per search.
	MaxOffers = 50
	// DealHorizon is how far ahead flexible-destination deals may depart.
	DealHorizon = 7 * 24 * time.Hour
	// DefaultDealMaxPrice applies when a deal query has no positive cap.
	DefaultDealMaxPrice = 500
)

// OfferSearch is an upstream flight-offer query.
type OfferSearch struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	Max           int
}

// DestinationSearch is an upstream flexible-destination query.
// DepartureDate may be a single date or a "from,to" range.
type DestinationSearch struct {
	Origin        string
	DepartureDate string
	MaxPrice      int
}

// Client is the upstream flight provider.
type Client interface {
	SearchOffers(ctx context.Context, params OfferSearch) ([]models.FlightOffer, error)
	FlightDestinations(ctx context.Context, params DestinationSearch) ([]models.FlightDeal, error)
}

// Service answers flight queries, caching offer searches.
type Service struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService creates a new flight service.
func NewService(client Client, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// CacheKey returns the key under which an offer search is cached.
func CacheKey(origin, destination, departureDate, returnDate string, passengers int) string {
	if returnDate == "" {
		returnDate = "null"
	}
	return fmt.Sprintf("flights_%s_%s_%s_%s_%d", origin, destination, departureDate, returnDate, passengers)
}

// SearchOffers returns priced offers for the route. Identical searches within
// the cache TTL are answered from cache, and concurrent identical misses share
// one upstream call.
func (s *Service) SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string, passengers int) ([]models.FlightOffer, error) {
	if passengers < 1 {
		passengers = 1
	}
	key := CacheKey(origin, destination, departureDate, returnDate, passengers)

	var cached []models.FlightOffer
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		metrics.CacheLookup("flights", true)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("flight cache read failed", "key", key, "error", err)
	}
	metrics.CacheLookup("flights", false)

	// The shared call outlives any one caller; each caller stops waiting on
	// its own cancellation.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		offers, err := s.client.SearchOffers(shared, OfferSearch{
			Origin:        origin,
			Destination:   destination,
			DepartureDate: departureDate,
			ReturnDate:    returnDate,
			Adults:        passengers,
			Max:           MaxOffers,
		})
		if err != nil {
			return nil, err
		}

		offers = dropNegative(offers)
		if err := cache.SetJSON(shared, s.cache, key, offers, s.ttl); err != nil {
			s.logger.Warn("flight cache write failed", "key", key, "error", err)
		}
		return offers, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to search flights: %w", ctx.Err())
	}
	if err := res.Err; err != nil {
		metrics.UpstreamError(metrics.ProviderAmadeus)
		s.logger.Error("flight search failed",
			"origin", origin,
			"destination", destination,
			"departure_date", departureDate,
			"error", err,
		)
		return nil, fmt.Errorf("failed to search flights: %w", err)
	}

	return res.Val.([]models.FlightOffer), nil
}

// CheapDestinationsFrom lists flexible-destination deals from origin departing
// between today and DealHorizon. A non-positive maxPrice uses
// DefaultDealMaxPrice.
func (s *Service) CheapDestinationsFrom(ctx context.Context, origin string, maxPrice int) ([]models.FlightDeal, error) {
	if maxPrice <= 0 {
		maxPrice = DefaultDealMaxPrice
	}
	today := s.now().UTC()
	window := today.Format(validation.DateLayout) + "," + today.Add(DealHorizon).Format(validation.DateLayout)

	deals, err := s.client.FlightDestinations(ctx, DestinationSearch{
		Origin:        origin,
		DepartureDate: window,
		MaxPrice:      maxPrice,
	})
	if err != nil {
		metrics.UpstreamError(metrics.ProviderAmadeus)
		s.logger.Error("last-minute deals failed", "origin", origin, "error", err)
		return nil, fmt.Errorf("failed to get last-minute deals: %w", err)
	}

	out := make([]models.FlightDeal, 0, len(deals))
	for _, d := range deals {
		if d.Price.Amount < 0 {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// OffersUnderPrice returns one-way single-passenger offers priced at or below
// maxPrice, cheapest first.
func (s *Service) OffersUnderPrice(ctx context.Context, origin, destination string, maxPrice float64, departureDate string) ([]models.FlightOffer, error) {
	offers, err := s.SearchOffers(ctx, origin, destination, departureDate, "", 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get flights by price: %w", err)
	}

	out := make([]models.FlightOffer, 0, len(offers))
	for _, o := range offers {
		if o.Price.Amount <= maxPrice {
			out = append(out, o)
		}
	}
	SortByPrice(out)
	return out, nil
}

// SortByPrice orders offers by ascending price, keeping upstream order for
// equal prices.
func SortByPrice(offers []models.FlightOffer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].Price.Amount < offers[j].Price.Amount
	})
}

func dropNegative(offers []models.FlightOffer) []models.FlightOffer {
	out := make([]models.FlightOffer, 0, len(offers))
	for _, o := range offers {
		if o.Price.Amount >= 0 {
			out = append(out, o)
		}
	}
	return out
}
