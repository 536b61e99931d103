package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"travel-agent-api/internal/flights"
	"travel-agent-api/internal/models"
)

const tokenPath = "/v1/security/oauth2/token"

// Config holds the Amadeus self-service credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client queries the Amadeus flight shopping API. Tokens are fetched and
// refreshed by the oauth2 transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	creds := clientcredentials.Config{
		ClientID:     cfg.APIKey,
		ClientSecret: cfg.APISecret,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := creds.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// SearchOffers calls GET /v2/shopping/flight-offers.
func (c *Client) SearchOffers(ctx context.Context, params flights.OfferSearch) ([]models.FlightOffer, error) {
	q := url.Values{}
	q.Set("originLocationCode", params.Origin)
	q.Set("destinationLocationCode", params.Destination)
	q.Set("departureDate", params.DepartureDate)
	if params.ReturnDate != "" {
		q.Set("returnDate", params.ReturnDate)
	}
	q.Set("adults", strconv.Itoa(params.Adults))
	if params.Max > 0 {
		q.Set("max", strconv.Itoa(params.Max))
	}

	var body offersResponse
	if err := c.get(ctx, "/v2/shopping/flight-offers", q, &body); err != nil {
		return nil, err
	}

	offers := make([]models.FlightOffer, 0, len(body.Data))
	for _, o := range body.Data {
		offer, ok := o.toModel()
		if !ok {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// FlightDestinations calls GET /v1/shopping/flight-destinations.
func (c *Client) FlightDestinations(ctx context.Context, params flights.DestinationSearch) ([]models.FlightDeal, error) {
	q := url.Values{}
	q.Set("origin", params.Origin)
	if params.DepartureDate != "" {
		q.Set("departureDate", params.DepartureDate)
	}
	if params.MaxPrice > 0 {
		q.Set("maxPrice", strconv.Itoa(params.MaxPrice))
	}

	var body destinationsResponse
	if err := c.get(ctx, "/v1/shopping/flight-destinations", q, &body); err != nil {
		return nil, err
	}

	deals := make([]models.FlightDeal, 0, len(body.Data))
	for _, d := range body.Data {
		amount, err := strconv.ParseFloat(d.Price.Total, 64)
		if err != nil {
			continue
		}
		deals = append(deals, models.FlightDeal{
			Destination:   d.Destination,
			DepartureDate: d.DepartureDate,
			ReturnDate:    d.ReturnDate,
			Price:         models.Money{Amount: amount, Currency: "USD"},
			Type:          d.Type,
		})
	}
	return deals, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dest any) error {
	u := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.amadeus+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type apiError struct {
	Status int    `json:"status"`
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Errors []apiError `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		e := payload.Errors[0]
		if e.Detail != "" {
			return fmt.Errorf("amadeus returned status %d: %s: %s", status, e.Title, e.Detail)
		}
		return fmt.Errorf("amadeus returned status %d: %s", status, e.Title)
	}
	return fmt.Errorf("amadeus returned status %d: %s", status, strings.TrimSpace(string(body)))
}

type offersResponse struct {
	Data []offerDTO `json:"data"`
}

type offerDTO struct {
	ID    string `json:"id"`
	Price struct {
		Currency   string `json:"currency"`
		Total      string `json:"total"`
		GrandTotal string `json:"grandTotal"`
	} `json:"price"`
	Itineraries []struct {
		Duration string `json:"duration"`
		Segments []struct {
			Departure   endpointDTO `json:"departure"`
			Arrival     endpointDTO `json:"arrival"`
			CarrierCode string      `json:"carrierCode"`
			Number      string      `json:"number"`
			Duration    string      `json:"duration"`
		} `json:"segments"`
	} `json:"itineraries"`
	NumberOfBookableSeats int `json:"numberOfBookableSeats"`
}

type endpointDTO struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

// toModel maps an upstream offer. Offers without a parseable price are
// reported as not ok.
func (o offerDTO) toModel() (models.FlightOffer, bool) {
	raw := o.Price.Total
	if raw == "" {
		raw = o.Price.GrandTotal
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.FlightOffer{}, false
	}

	itineraries := make([]models.Itinerary, 0, len(o.Itineraries))
	for _, it := range o.Itineraries {
		segments := make([]models.Segment, 0, len(it.Segments))
		for _, s := range it.Segments {
			segments = append(segments, models.Segment{
				Departure:    models.Endpoint{Airport: s.Departure.IATACode, Time: s.Departure.At},
				Arrival:      models.Endpoint{Airport: s.Arrival.IATACode, Time: s.Arrival.At},
				Carrier:      s.CarrierCode,
				FlightNumber: s.Number,
				Duration:     s.Duration,
			})
		}
		itineraries = append(itineraries, models.Itinerary{
			Duration: it.Duration,
			Segments: segments,
		})
	}

	return models.FlightOffer{
		ID:                    o.ID,
		Price:                 models.Money{Amount: amount, Currency: o.Price.Currency},
		Itineraries:           itineraries,
		NumberOfBookableSeats: o.NumberOfBookableSeats,
	}, true
}

type destinationsResponse struct {
	Data []struct {
		Type          string `json:"type"`
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureDate string `json:"departureDate"`
		ReturnDate    string `json:"returnDate"`
		Price         struct {
			Total string `json:"total"`
		} `json:"price"`
	} `json:"data"`
}
