package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"travel-agent-api/internal/events"
	"travel-agent-api/internal/lodging"
	"travel-agent-api/internal/models"
	"travel-agent-api/internal/narrative"
	"travel-agent-api/internal/validation"
)

type mockFlights struct {
	mock.Mock
}

func (m *mockFlights) SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string, passengers int) ([]models.FlightOffer, error) {
	args := m.Called(ctx, origin, destination, departureDate, returnDate, passengers)
	if offers, ok := args.Get(0).([]models.FlightOffer); ok {
		return offers, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLodging struct {
	mock.Mock
}

func (m *mockLodging) Search(ctx context.Context, q lodging.Query) ([]models.LodgingListing, error) {
	args := m.Called(ctx, q)
	if listings, ok := args.Get(0).([]models.LodgingListing); ok {
		return listings, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNarrator struct {
	mock.Mock
}

func (m *mockNarrator) Describe(ctx context.Context, trip narrative.TripContext) string {
	args := m.Called(ctx, trip)
	return args.String(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(id string, amount float64) models.FlightOffer {
	return models.FlightOffer{ID: id, Price: models.Money{Amount: amount, Currency: "USD"}}
}

func stay(id string, rate float64) models.LodgingListing {
	return models.LodgingListing{ID: id, NightlyRate: models.Money{Amount: rate, Currency: "USD"}}
}

func parisRequest() TripRequest {
	return TripRequest{
		Origin:        "NYC",
		Destination:   "PAR",
		DepartureDate: "2025-06-01",
		ReturnDate:    "2025-06-08",
		Budget:        2000,
		Passengers:    1,
	}
}

func TestNights(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	assert.Equal(t, 7, Nights(day("2025-06-01"), day("2025-06-08")))
	assert.Equal(t, 1, Nights(day("2025-06-01"), day("2025-06-01")))
	assert.Equal(t, 1, Nights(day("2025-06-08"), day("2025-06-01")))
	assert.Equal(t, 1, Nights(day("2025-06-01"), day("2025-06-01").Add(2*time.Hour)))
	assert.Equal(t, 2, Nights(day("2025-06-01"), day("2025-06-02").Add(time.Hour)))
}

func TestPlanTrip_BudgetExample(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, "NYC", "PAR", "2025-06-01", "2025-06-08", 1).
		Return([]models.FlightOffer{offer("f1", 1000)}, nil)

	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.MatchedBy(func(q lodging.Query) bool {
		return q.Location == "PAR" &&
			q.CheckIn == "2025-06-01" &&
			q.CheckOut == "2025-06-08" &&
			q.Guests == 1 &&
			q.MaxPrice != nil &&
			*q.MaxPrice > 142.857 && *q.MaxPrice < 142.858
	})).Return([]models.LodgingListing{stay("s1", 100)}, nil)

	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.MatchedBy(func(trip narrative.TripContext) bool {
		return trip.Nights == 7 && trip.FlightCost == 1000 && trip.AccommodationBudget == 1000 && trip.Destination == "PAR"
	})).Return("Enjoy Paris.")

	proposal, err := NewComposer(fl, ld, nr, discardLogger()).PlanTrip(context.Background(), parisRequest())
	require.NoError(t, err)

	assert.True(t, proposal.Success)
	assert.Equal(t, 7, proposal.Nights)
	require.NotNil(t, proposal.Budget)
	assert.Equal(t, 2000.0, proposal.Budget.Total)
	assert.Equal(t, 1000.0, proposal.Budget.Flights)
	assert.Equal(t, 1000.0, proposal.Budget.Accommodation)
	assert.Equal(t, 1700.0, proposal.Budget.Estimated)
	assert.Equal(t, "Enjoy Paris.", proposal.AIRecommendation)
	require.Len(t, proposal.Flights, 1)
	require.Len(t, proposal.Accommodations, 1)

	fl.AssertExpectations(t)
	ld.AssertExpectations(t)
	nr.AssertExpectations(t)
}

func TestPlanTrip_SelectedFlightWithinShare(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, 2).
		Return([]models.FlightOffer{
			offer("too-much", 700), // 1400 for two
			offer("fits", 550),     // 1100 for two
			offer("exact", 600),    // 1200 for two, exactly 60% of 2000
			offer("cheap", 400),
		}, nil)

	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.Anything).Return([]models.LodgingListing{}, nil)
	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.Anything).Return("ok")

	req := parisRequest()
	req.Passengers = 2

	proposal, err := NewComposer(fl, ld, nr, discardLogger()).PlanTrip(context.Background(), req)
	require.NoError(t, err)
	require.True(t, proposal.Success)

	for _, f := range proposal.Flights {
		assert.LessOrEqual(t, f.Price.Amount*2, 2000*FlightBudgetShare)
	}
	assert.LessOrEqual(t, proposal.Budget.Flights, 2000*FlightBudgetShare)
	assert.Equal(t, "cheap", proposal.Flights[0].ID)
	assert.Equal(t, 800.0, proposal.Budget.Flights)
	assert.Equal(t, 800.0, proposal.Budget.Estimated)
}

func TestPlanTrip_UpstreamOrderWhenCheapestFirstOff(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.FlightOffer{offer("first", 900), offer("cheaper", 300)}, nil)

	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.Anything).Return([]models.LodgingListing{}, nil)
	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.Anything).Return("ok")

	c := NewComposer(fl, ld, nr, discardLogger(), WithCheapestFirst(func() bool { return false }))

	proposal, err := c.PlanTrip(context.Background(), parisRequest())
	require.NoError(t, err)
	assert.Equal(t, "first", proposal.Flights[0].ID)
	assert.Equal(t, 900.0, proposal.Budget.Flights)
}

func TestPlanTrip_NoAffordableFlight(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.FlightOffer{offer("f1", 1500), offer("f2", 1300)}, nil)

	ld := new(mockLodging)
	nr := new(mockNarrator)

	mgr := events.NewManager(true, discardLogger())
	rejected := make(chan events.Event, 1)
	mgr.Subscribe(events.EventTripRejected, func(ctx context.Context, e events.Event) error {
		rejected <- e
		return nil
	})

	proposal, err := NewComposer(fl, ld, nr, discardLogger(), WithEvents(mgr)).PlanTrip(context.Background(), parisRequest())
	require.NoError(t, err)

	assert.False(t, proposal.Success)
	assert.Equal(t, NoAffordableFlightMessage, proposal.Message)
	assert.Nil(t, proposal.Budget)
	ld.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	nr.AssertNotCalled(t, "Describe", mock.Anything, mock.Anything)

	mgr.Wait()
	e := <-rejected
	data, ok := e.Data.(events.TripRejectedData)
	require.True(t, ok)
	assert.Equal(t, 2, data.OffersFound)
}

func TestPlanTrip_NoLodgingKeepsFlightEstimate(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.FlightOffer{offer("f1", 500)}, nil)

	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("unexpected"))
	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.Anything).Return(narrative.FallbackRecommendation)

	proposal, err := NewComposer(fl, ld, nr, discardLogger()).PlanTrip(context.Background(), parisRequest())
	require.NoError(t, err)

	assert.True(t, proposal.Success)
	assert.Equal(t, 500.0, proposal.Budget.Estimated)
	assert.Empty(t, proposal.Accommodations)
	assert.Equal(t, narrative.FallbackRecommendation, proposal.AIRecommendation)
}

func TestPlanTrip_OneWayUsesDepartureAsCheckOut(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, "NYC", "PAR", "2025-06-01", "", 1).
		Return([]models.FlightOffer{offer("f1", 500)}, nil)

	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.MatchedBy(func(q lodging.Query) bool {
		return q.CheckOut == "2025-06-01" && *q.MaxPrice == 1500
	})).Return([]models.LodgingListing{stay("s1", 90)}, nil)
	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.Anything).Return("ok")

	req := parisRequest()
	req.ReturnDate = ""

	proposal, err := NewComposer(fl, ld, nr, discardLogger()).PlanTrip(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, proposal.Nights)
	assert.Equal(t, 590.0, proposal.Budget.Estimated)
	ld.AssertExpectations(t)
}

func TestPlanTrip_TruncatesFlightsAndStays(t *testing.T) {
	var offers []models.FlightOffer
	for i := 0; i < 15; i++ {
		offers = append(offers, offer(string(rune('a'+i)), float64(100+i)))
	}
	var stays []models.LodgingListing
	for i := 0; i < 8; i++ {
		stays = append(stays, stay(string(rune('A'+i)), float64(50+i)))
	}

	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(offers, nil)
	ld := new(mockLodging)
	ld.On("Search", mock.Anything, mock.Anything).Return(stays, nil)
	nr := new(mockNarrator)
	nr.On("Describe", mock.Anything, mock.MatchedBy(func(trip narrative.TripContext) bool {
		return len(trip.Flights) == 3 && len(trip.Accommodations) == 5
	})).Return("ok")

	proposal, err := NewComposer(fl, ld, nr, discardLogger()).PlanTrip(context.Background(), parisRequest())
	require.NoError(t, err)
	assert.Len(t, proposal.Flights, 3)
	assert.Len(t, proposal.Accommodations, 5)
	nr.AssertExpectations(t)
}

func TestPlanTrip_FlightErrorIsTripPlanningError(t *testing.T) {
	fl := new(mockFlights)
	fl.On("SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("failed to search flights: timeout"))

	_, err := NewComposer(fl, new(mockLodging), new(mockNarrator), discardLogger()).PlanTrip(context.Background(), parisRequest())
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrTripPlanningFailed))
	var tpe *TripPlanningError
	require.True(t, errors.As(err, &tpe))
	assert.Equal(t, "failed to plan trip: failed to search flights: timeout", err.Error())
}

func TestPlanTrip_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TripRequest)
		want   string
	}{
		{"missing fields", func(r *TripRequest) { r.Origin = ""; r.DepartureDate = "" }, "Missing required fields: origin and departureDate are required"},
		{"zero budget", func(r *TripRequest) { r.Budget = 0 }, "budget"},
		{"no passengers", func(r *TripRequest) { r.Passengers = 0 }, "passengers"},
		{"bad date", func(r *TripRequest) { r.DepartureDate = "06/01/2025" }, "departureDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := new(mockFlights)
			req := parisRequest()
			tt.mutate(&req)

			_, err := NewComposer(fl, new(mockLodging), new(mockNarrator), discardLogger()).PlanTrip(context.Background(), req)
			require.Error(t, err)
			assert.True(t, validation.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
			fl.AssertNotCalled(t, "SearchOffers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
