package planner

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"travel-agent-api/internal/events"
	"travel-agent-api/internal/flights"
	"travel-agent-api/internal/lodging"
	"travel-agent-api/internal/metrics"
	"travel-agent-api/internal/models"
	"travel-agent-api/internal/narrative"
	"travel-agent-api/internal/tracing"
	"travel-agent-api/internal/validation"
)

const (
	// FlightBudgetShare is the fraction of the budget flights may consume.
	FlightBudgetShare = 0.6

	maxAffordable     = 10
	maxProposedFlight = 3
	maxProposedStays  = 5
)

// NoAffordableFlightMessage is returned when no offer fits the flight share.
const NoAffordableFlightMessage = "No flights found within budget. Consider increasing your budget or changing dates."

// ErrTripPlanningFailed matches every *TripPlanningError.
var ErrTripPlanningFailed = errors.New("trip planning failed")

// TripPlanningError reports a planning failure caused by an upstream error.
type TripPlanningError struct {
	Err error
}

func (e *TripPlanningError) Error() string {
	return "failed to plan trip: " + e.Err.Error()
}

func (e *TripPlanningError) Unwrap() error { return e.Err }

func (e *TripPlanningError) Is(target error) bool { return target == ErrTripPlanningFailed }

// FlightSearcher finds priced flight offers.
type FlightSearcher interface {
	SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string, passengers int) ([]models.FlightOffer, error)
}

// LodgingSearcher finds listings. Implementations are expected to mask
// upstream failures.
type LodgingSearcher interface {
	Search(ctx context.Context, q lodging.Query) ([]models.LodgingListing, error)
}

// Narrator writes the recommendation text.
type Narrator interface {
	Describe(ctx context.Context, trip narrative.TripContext) string
}

// TripRequest is a validated planning request.
type TripRequest struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Budget        float64
	Passengers    int
	Preferences   models.Preferences
}

// Composer splits a budget between flights and lodging.
type Composer struct {
	flights       FlightSearcher
	lodging       LodgingSearcher
	narrator      Narrator
	events        *events.Manager
	tracer        *tracing.Tracer
	logger        *slog.Logger
	cheapestFirst func() bool
}

// Option configures a Composer.
type Option func(*Composer)

// WithEvents publishes trip outcomes to m.
func WithEvents(m *events.Manager) Option {
	return func(c *Composer) { c.events = m }
}

// WithTracer records a span per plan.
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Composer) { c.tracer = t }
}

// WithCheapestFirst controls whether affordable offers are ordered by price
// before the reference flight is chosen. Defaults to on.
func WithCheapestFirst(enabled func() bool) Option {
	return func(c *Composer) { c.cheapestFirst = enabled }
}

// NewComposer creates a new Composer.
func NewComposer(flightSearcher FlightSearcher, lodgingSearcher LodgingSearcher, narrator Narrator, logger *slog.Logger, opts ...Option) *Composer {
	c := &Composer{
		flights:       flightSearcher,
		lodging:       lodgingSearcher,
		narrator:      narrator,
		tracer:        tracing.Noop(),
		logger:        logger,
		cheapestFirst: func() bool { return true },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Nights is the whole number of nights between two dates, at least one.
func Nights(checkIn, checkOut time.Time) int {
	n := int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
	if n < 1 {
		return 1
	}
	return n
}

// Validate checks a request before any upstream call.
func (r TripRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(r.Destination) == "" {
		missing = append(missing, "destination")
	}
	if strings.TrimSpace(r.DepartureDate) == "" {
		missing = append(missing, "departureDate")
	}
	if len(missing) > 0 {
		return validation.MissingFields(missing...)
	}
	if math.IsNaN(r.Budget) || math.IsInf(r.Budget, 0) || r.Budget <= 0 {
		return &validation.ValidationError{Field: "budget", Message: "must be positive"}
	}
	if r.Passengers < 1 {
		return &validation.ValidationError{Field: "passengers", Message: "must be at least 1"}
	}
	return nil
}

// PlanTrip builds a proposal for req. It reports success=false without error
// when no flight fits the flight share of the budget; lodging and narrative
// failures never fail the plan.
func (c *Composer) PlanTrip(ctx context.Context, req TripRequest) (*models.TripProposal, error) {
	ctx, span := c.tracer.StartSpan(ctx, "planner.PlanTrip")
	defer span.End()
	span.SetAttributes(
		attribute.String("trip.origin", req.Origin),
		attribute.String("trip.destination", req.Destination),
		attribute.Float64("trip.budget", req.Budget),
		attribute.Int("trip.passengers", req.Passengers),
	)

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	checkIn, err := validation.ValidateDate(req.DepartureDate, "departureDate")
	if err != nil {
		return nil, err
	}
	checkOutDate := req.ReturnDate
	if checkOutDate == "" {
		checkOutDate = req.DepartureDate
	}
	checkOut, err := validation.ValidateDate(checkOutDate, "returnDate")
	if err != nil {
		return nil, err
	}

	offers, err := c.flights.SearchOffers(ctx, req.Origin, req.Destination, req.DepartureDate, req.ReturnDate, req.Passengers)
	if err != nil {
		metrics.TripPlan(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "flight search failed")
		return nil, &TripPlanningError{Err: err}
	}

	passengers := float64(req.Passengers)
	maxFlightBudget := req.Budget * FlightBudgetShare

	affordable := make([]models.FlightOffer, 0, len(offers))
	for _, o := range offers {
		if o.Price.Amount*passengers <= maxFlightBudget {
			affordable = append(affordable, o)
		}
	}
	if c.cheapestFirst() {
		flights.SortByPrice(affordable)
	}
	if len(affordable) > maxAffordable {
		affordable = affordable[:maxAffordable]
	}

	if len(affordable) == 0 {
		metrics.TripPlan(metrics.OutcomeNoFlights)
		c.logger.Info("no affordable flight",
			"origin", req.Origin,
			"destination", req.Destination,
			"budget", req.Budget,
			"offers", len(offers),
		)
		c.publishRejected(ctx, req, len(offers))
		return &models.TripProposal{
			Success: false,
			Message: NoAffordableFlightMessage,
		}, nil
	}

	flightCost := affordable[0].Price.Amount * passengers
	accommodationBudget := req.Budget - flightCost
	nights := Nights(checkIn, checkOut)
	maxNightlyRate := accommodationBudget / float64(nights)

	stays, err := c.lodging.Search(ctx, lodging.Query{
		Location: req.Destination,
		CheckIn:  req.DepartureDate,
		CheckOut: checkOutDate,
		Guests:   req.Passengers,
		MaxPrice: &maxNightlyRate,
	})
	if err != nil {
		c.logger.Warn("lodging search failed", "destination", req.Destination, "error", err)
		stays = nil
	}

	topFlights := head(affordable, maxProposedFlight)
	topStays := head(stays, maxProposedStays)

	recommendation := c.narrator.Describe(ctx, narrative.TripContext{
		Flights:             topFlights,
		Accommodations:      topStays,
		Budget:              req.Budget,
		FlightCost:          flightCost,
		AccommodationBudget: accommodationBudget,
		Nights:              nights,
		Preferences:         req.Preferences,
		Destination:         req.Destination,
	})

	estimated := flightCost
	if len(stays) > 0 {
		estimated += stays[0].NightlyRate.Amount * float64(nights)
	}

	span.SetAttributes(
		attribute.Int("trip.nights", nights),
		attribute.Float64("trip.flight_cost", flightCost),
		attribute.Float64("trip.estimated", estimated),
	)
	metrics.TripPlan(metrics.OutcomePlanned)
	c.publishPlanned(ctx, req, flightCost, estimated, nights, len(stays))

	return &models.TripProposal{
		Success: true,
		Budget: &models.BudgetBreakdown{
			Total:         req.Budget,
			Flights:       flightCost,
			Accommodation: accommodationBudget,
			Estimated:     estimated,
		},
		Nights:           nights,
		Flights:          topFlights,
		Accommodations:   topStays,
		AIRecommendation: recommendation,
	}, nil
}

func (c *Composer) publishPlanned(ctx context.Context, req TripRequest, flightCost, estimated float64, nights, stays int) {
	if c.events == nil {
		return
	}
	c.events.PublishTripPlanned(ctx, events.TripPlannedData{
		Origin:         req.Origin,
		Destination:    req.Destination,
		DepartureDate:  req.DepartureDate,
		ReturnDate:     req.ReturnDate,
		Passengers:     req.Passengers,
		Budget:         req.Budget,
		FlightCost:     flightCost,
		Estimated:      estimated,
		Nights:         nights,
		Accommodations: stays,
	})
}

func (c *Composer) publishRejected(ctx context.Context, req TripRequest, offersFound int) {
	if c.events == nil {
		return
	}
	c.events.PublishTripRejected(ctx, events.TripRejectedData{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
		Passengers:    req.Passengers,
		Budget:        req.Budget,
		OffersFound:   offersFound,
	})
}

func head[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
