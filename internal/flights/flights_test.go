package flights

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"travel-agent-api/internal/cache"
	"travel-agent-api/internal/models"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) SearchOffers(ctx context.Context, params OfferSearch) ([]models.FlightOffer, error) {
	args := m.Called(ctx, params)
	if offers, ok := args.Get(0).([]models.FlightOffer); ok {
		return offers, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) FlightDestinations(ctx context.Context, params DestinationSearch) ([]models.FlightDeal, error) {
	args := m.Called(ctx, params)
	if deals, ok := args.Get(0).([]models.FlightDeal); ok {
		return deals, args.Error(1)
	}
	return nil, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(id string, amount float64) models.FlightOffer {
	return models.FlightOffer{
		ID:    id,
		Price: models.Money{Amount: amount, Currency: "USD"},
		Itineraries: []models.Itinerary{{
			Duration: "PT7H",
			Segments: []models.Segment{{
				Departure: models.Endpoint{Airport: "JFK", Time: "2025-06-01T18:00:00"},
				Arrival:   models.Endpoint{Airport: "CDG", Time: "2025-06-02T07:00:00"},
				Carrier:   "AF",
			}},
		}},
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "flights_NYC_PAR_2025-06-01_2025-06-08_2", CacheKey("NYC", "PAR", "2025-06-01", "2025-06-08", 2))
	assert.Equal(t, "flights_NYC_PAR_2025-06-01_null_1", CacheKey("NYC", "PAR", "2025-06-01", "", 1))
}

func TestSearchOffers_CachedWithinTTL(t *testing.T) {
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, OfferSearch{
		Origin:        "NYC",
		Destination:   "PAR",
		DepartureDate: "2025-06-01",
		ReturnDate:    "2025-06-08",
		Adults:        2,
		Max:           MaxOffers,
	}).Return([]models.FlightOffer{offer("1", 500), offer("2", 700)}, nil).Once()

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())
	ctx := context.Background()

	first, err := svc.SearchOffers(ctx, "NYC", "PAR", "2025-06-01", "2025-06-08", 2)
	require.NoError(t, err)
	second, err := svc.SearchOffers(ctx, "NYC", "PAR", "2025-06-01", "2025-06-08", 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
	client.AssertNumberOfCalls(t, "SearchOffers", 1)
}

func TestSearchOffers_ExpiredEntryRefetches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, mock.Anything).Return([]models.FlightOffer{offer("1", 500)}, nil)

	svc := NewService(client, cache.NewInMemoryCache(cache.WithClock(clock)), time.Hour, discardLogger())
	ctx := context.Background()

	_, err := svc.SearchOffers(ctx, "NYC", "PAR", "2025-06-01", "", 1)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = svc.SearchOffers(ctx, "NYC", "PAR", "2025-06-01", "", 1)
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "SearchOffers", 2)
}

func TestSearchOffers_ConcurrentMissesCollapse(t *testing.T) {
	release := make(chan struct{})
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return([]models.FlightOffer{offer("1", 500)}, nil)

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			offers, err := svc.SearchOffers(context.Background(), "NYC", "PAR", "2025-06-01", "", 1)
			assert.NoError(t, err)
			assert.Len(t, offers, 1)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	client.AssertNumberOfCalls(t, "SearchOffers", 1)
}

// gatedClient blocks SearchOffers until release is closed or the call's
// context is done.
type gatedClient struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGatedClient() *gatedClient {
	return &gatedClient{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedClient) SearchOffers(ctx context.Context, _ OfferSearch) ([]models.FlightOffer, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return []models.FlightOffer{offer("1", 500)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedClient) FlightDestinations(context.Context, DestinationSearch) ([]models.FlightDeal, error) {
	return nil, nil
}

func TestSearchOffers_CancelledCallerDoesNotFailSharedSearch(t *testing.T) {
	client := newGatedClient()
	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.SearchOffers(ctx, "NYC", "PAR", "2025-06-01", "", 1)
		firstErr <- err
	}()
	<-client.started

	type result struct {
		offers []models.FlightOffer
		err    error
	}
	second := make(chan result, 1)
	go func() {
		offers, err := svc.SearchOffers(context.Background(), "NYC", "PAR", "2025-06-01", "", 1)
		second <- result{offers, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	close(client.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.offers, 1)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestSearchOffers_UpstreamErrorIsWrappedAndNotCached(t *testing.T) {
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Twice()

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	_, err := svc.SearchOffers(context.Background(), "NYC", "PAR", "2025-06-01", "", 1)
	require.Error(t, err)
	assert.Equal(t, "failed to search flights: boom", err.Error())

	_, err = svc.SearchOffers(context.Background(), "NYC", "PAR", "2025-06-01", "", 1)
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "SearchOffers", 2)
}

func TestSearchOffers_DropsNegativePrices(t *testing.T) {
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, mock.Anything).
		Return([]models.FlightOffer{offer("1", -5), offer("2", 300)}, nil)

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	offers, err := svc.SearchOffers(context.Background(), "NYC", "PAR", "2025-06-01", "", 1)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "2", offers[0].ID)
}

func TestOffersUnderPrice_FiltersAndSorts(t *testing.T) {
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, OfferSearch{
		Origin:        "NYC",
		Destination:   "PAR",
		DepartureDate: "2025-06-01",
		Adults:        1,
		Max:           MaxOffers,
	}).Return([]models.FlightOffer{
		offer("a", 450),
		offer("b", 900),
		offer("c", 300),
		offer("d", 450),
	}, nil)

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	offers, err := svc.OffersUnderPrice(context.Background(), "NYC", "PAR", 500, "2025-06-01")
	require.NoError(t, err)

	ids := make([]string, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"c", "a", "d"}, ids)
}

func TestOffersUnderPrice_WrapsSearchError(t *testing.T) {
	client := new(mockClient)
	client.On("SearchOffers", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	_, err := svc.OffersUnderPrice(context.Background(), "NYC", "PAR", 500, "2025-06-01")
	require.Error(t, err)
	assert.Equal(t, "failed to get flights by price: failed to search flights: timeout", err.Error())
}

func TestCheapDestinationsFrom_DefaultsAndWindow(t *testing.T) {
	client := new(mockClient)
	client.On("FlightDestinations", mock.Anything, DestinationSearch{
		Origin:        "MAD",
		DepartureDate: "2025-06-01,2025-06-08",
		MaxPrice:      DefaultDealMaxPrice,
	}).Return([]models.FlightDeal{
		{Destination: "LIS", Price: models.Money{Amount: 89, Currency: "USD"}},
		{Destination: "BAD", Price: models.Money{Amount: -1, Currency: "USD"}},
	}, nil)

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	deals, err := svc.CheapDestinationsFrom(context.Background(), "MAD", 0)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "LIS", deals[0].Destination)
	client.AssertExpectations(t)
}

func TestCheapDestinationsFrom_WrapsError(t *testing.T) {
	client := new(mockClient)
	client.On("FlightDestinations", mock.Anything, mock.Anything).Return(nil, errors.New("unauthorized"))

	svc := NewService(client, cache.NewInMemoryCache(), time.Hour, discardLogger())

	_, err := svc.CheapDestinationsFrom(context.Background(), "MAD", 300)
	require.Error(t, err)
	assert.Equal(t, "failed to get last-minute deals: unauthorized", err.Error())
}
