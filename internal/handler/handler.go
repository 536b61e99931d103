package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"travel-agent-api/internal/flights"
	"travel-agent-api/internal/lodging"
	"travel-agent-api/internal/models"
	"travel-agent-api/internal/planner"
	"travel-agent-api/internal/validation"
)

// HealthMessage is reported by GET /health.
const HealthMessage = "AI Travel Agent API is running"

// FlightService answers flight queries.
type FlightService interface {
	SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string, passengers int) ([]models.FlightOffer, error)
	CheapDestinationsFrom(ctx context.Context, origin string, maxPrice int) ([]models.FlightDeal, error)
	OffersUnderPrice(ctx context.Context, origin, destination string, maxPrice float64, departureDate string) ([]models.FlightOffer, error)
}

// LodgingService answers lodging queries.
type LodgingService interface {
	Search(ctx context.Context, q lodging.Query) ([]models.LodgingListing, error)
	BestValue(ctx context.Context, q lodging.Query) ([]models.LodgingListing, error)
}

// TripPlanner composes trips within a budget.
type TripPlanner interface {
	PlanTrip(ctx context.Context, req planner.TripRequest) (*models.TripProposal, error)
}

// Assistant answers free-form traveller messages.
type Assistant interface {
	Chat(ctx context.Context, message string, chatContext map[string]any) (string, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	flights     FlightService
	lodging     LodgingService
	planner     TripPlanner
	assistant   Assistant
	logger      *slog.Logger
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(fs FlightService, ls LodgingService, tp TripPlanner, a Assistant, logger *slog.Logger) *Handler {
	return NewHandlerWithOptions(fs, ls, tp, a, logger, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(fs FlightService, ls LodgingService, tp TripPlanner, a Assistant, logger *slog.Logger, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		flights:     fs,
		lodging:     ls,
		planner:     tp,
		assistant:   a,
		logger:      logger,
		maxBodySize: opts.MaxBodySize,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/flights", func(r chi.Router) {
		r.Post("/search", h.SearchFlights)
		r.Get("/last-minute-deals", h.LastMinuteDeals)
		r.Post("/by-price", h.FlightsByPrice)
	})

	r.Route("/accommodation", func(r chi.Router) {
		r.Post("/search", h.SearchAccommodation)
		r.Post("/deals", h.AccommodationDeals)
	})

	r.Route("/trip-planner", func(r chi.Router) {
		r.Post("/plan", h.PlanTrip)
		r.Post("/chat", h.Chat)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Message: HealthMessage})
}

// SearchFlights handles POST /flights/search
func (h *Handler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	var req models.FlightSearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Origin = validation.SanitizeString(req.Origin)
	req.Destination = validation.SanitizeString(req.Destination)
	req.DepartureDate = validation.SanitizeString(req.DepartureDate)
	req.ReturnDate = validation.SanitizeString(req.ReturnDate)

	if req.Origin == "" || req.Destination == "" || req.DepartureDate == "" {
		h.respondErr(w, validation.MissingFields("origin", "destination", "departureDate"))
		return
	}
	if _, err := validation.ValidateDate(req.DepartureDate, "departureDate"); err != nil {
		h.respondErr(w, err)
		return
	}
	if err := validation.ValidateOptionalDate(req.ReturnDate, "returnDate"); err != nil {
		h.respondErr(w, err)
		return
	}
	passengers, err := validation.PositiveInt(req.Passengers, "passengers", 1)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	offers, err := h.flights.SearchOffers(r.Context(), req.Origin, req.Destination, req.DepartureDate, req.ReturnDate, passengers)
	if err != nil {
		h.logger.Error("flight search error", "error", err)
		h.respondErr(w, err)
		return
	}

	respondList(h, w, offers)
}

// LastMinuteDeals handles GET /flights/last-minute-deals
func (h *Handler) LastMinuteDeals(w http.ResponseWriter, r *http.Request) {
	origin := validation.SanitizeString(r.URL.Query().Get("origin"))
	if origin == "" {
		h.respondError(w, http.StatusBadRequest, "Origin airport code is required")
		return
	}

	maxPrice, err := validation.ParseInt(r.URL.Query().Get("maxPrice"), "maxPrice", flights.DefaultDealMaxPrice)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	deals, err := h.flights.CheapDestinationsFrom(r.Context(), origin, maxPrice)
	if err != nil {
		h.logger.Error("last-minute deals error", "error", err)
		h.respondErr(w, err)
		return
	}

	respondList(h, w, deals)
}

// FlightsByPrice handles POST /flights/by-price
func (h *Handler) FlightsByPrice(w http.ResponseWriter, r *http.Request) {
	var req models.FlightsByPriceRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Origin = validation.SanitizeString(req.Origin)
	req.Destination = validation.SanitizeString(req.Destination)
	req.DepartureDate = validation.SanitizeString(req.DepartureDate)

	if req.Origin == "" || req.Destination == "" || req.DepartureDate == "" || !req.MaxPrice.Set {
		h.respondErr(w, validation.MissingFields("origin", "destination", "departureDate", "maxPrice"))
		return
	}
	if _, err := validation.ValidateDate(req.DepartureDate, "departureDate"); err != nil {
		h.respondErr(w, err)
		return
	}
	maxPrice, err := validation.RequiredPositiveFloat(req.MaxPrice, "maxPrice")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	offers, err := h.flights.OffersUnderPrice(r.Context(), req.Origin, req.Destination, maxPrice, req.DepartureDate)
	if err != nil {
		h.logger.Error("flights by price error", "error", err)
		h.respondErr(w, err)
		return
	}

	respondList(h, w, offers)
}

// SearchAccommodation handles POST /accommodation/search
func (h *Handler) SearchAccommodation(w http.ResponseWriter, r *http.Request) {
	var req models.AccommodationSearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	q, err := lodgingQuery(req.Location, req.CheckIn, req.CheckOut, req.Guests)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if req.MaxPrice.Set {
		maxPrice, err := validation.ParseFloat(req.MaxPrice.Raw, "maxPrice", 0)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		q.MaxPrice = &maxPrice
	}

	listings, err := h.lodging.Search(r.Context(), q)
	if err != nil {
		h.logger.Error("accommodation search error", "error", err)
		h.respondErr(w, err)
		return
	}

	respondList(h, w, listings)
}

// AccommodationDeals handles POST /accommodation/deals
func (h *Handler) AccommodationDeals(w http.ResponseWriter, r *http.Request) {
	var req models.AccommodationDealsRequest
	if !h.decode(w, r, &req) {
		return
	}

	q, err := lodgingQuery(req.Location, req.CheckIn, req.CheckOut, req.Guests)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	q.MaxPrice, err = validation.OptionalPositiveFloat(req.MaxBudget, "maxBudget")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	listings, err := h.lodging.BestValue(r.Context(), q)
	if err != nil {
		h.logger.Error("accommodation deals error", "error", err)
		h.respondErr(w, err)
		return
	}

	respondList(h, w, listings)
}

// PlanTrip handles POST /trip-planner/plan
func (h *Handler) PlanTrip(w http.ResponseWriter, r *http.Request) {
	var req models.TripPlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Origin = validation.SanitizeString(req.Origin)
	req.Destination = validation.SanitizeString(req.Destination)
	req.DepartureDate = validation.SanitizeString(req.DepartureDate)
	req.ReturnDate = validation.SanitizeString(req.ReturnDate)

	if req.Origin == "" || req.Destination == "" || req.DepartureDate == "" || !req.Budget.Set {
		h.respondErr(w, validation.MissingFields("origin", "destination", "departureDate", "budget"))
		return
	}
	if err := validation.ValidateOptionalDate(req.ReturnDate, "returnDate"); err != nil {
		h.respondErr(w, err)
		return
	}
	budget, err := validation.RequiredPositiveFloat(req.Budget, "budget")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	passengers, err := validation.PositiveInt(req.Passengers, "passengers", 1)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	preferences := req.Preferences
	if preferences == nil {
		preferences = models.Preferences{}
	}

	proposal, err := h.planner.PlanTrip(r.Context(), planner.TripRequest{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
		ReturnDate:    req.ReturnDate,
		Budget:        budget,
		Passengers:    passengers,
		Preferences:   preferences,
	})
	if err != nil {
		h.logger.Error("trip planning error", "error", err)
		h.respondErr(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, proposal)
}

// Chat handles POST /trip-planner/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	message := validation.SanitizeString(req.Message)
	if message == "" {
		h.respondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	response, err := h.assistant.Chat(r.Context(), message, req.Context)
	if err != nil {
		h.logger.Error("chat error", "error", err)
		h.respondErr(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.ChatResponse{Success: true, Response: response})
}

func lodgingQuery(location, checkIn, checkOut string, guests models.FlexNumber) (lodging.Query, error) {
	location = validation.SanitizeString(location)
	checkIn = validation.SanitizeString(checkIn)
	checkOut = validation.SanitizeString(checkOut)

	if location == "" || checkIn == "" || checkOut == "" {
		return lodging.Query{}, validation.MissingFields("location", "checkIn", "checkOut")
	}
	if _, err := validation.ValidateDate(checkIn, "checkIn"); err != nil {
		return lodging.Query{}, err
	}
	if _, err := validation.ValidateDate(checkOut, "checkOut"); err != nil {
		return lodging.Query{}, err
	}
	n, err := validation.PositiveInt(guests, "guests", lodging.DefaultGuests)
	if err != nil {
		return lodging.Query{}, err
	}

	return lodging.Query{
		Location: location,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   n,
	}, nil
}

// decode reads a JSON body into dest. An empty body leaves dest zeroed so
// that the required-field checks report what is missing.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func respondList[T any](h *Handler, w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	h.respondJSON(w, http.StatusOK, models.ListResponse[T]{
		Success: true,
		Count:   len(items),
		Data:    items,
	})
}

// respondErr maps err to a status code: validation failures are the
// client's, everything else is ours.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if validation.IsValidationError(err) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error())
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
