package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"travel-agent-api/internal/metrics"
	"travel-agent-api/internal/models"
)

// FallbackRecommendation replaces a recommendation that could not be
// generated.
const FallbackRecommendation = "Unable to generate AI recommendations at this time. Please review the available options above."

const (
	advisorSystemPrompt = "You are a professional travel advisor helping users plan budget-friendly trips."

	assistantSystemPrompt = `You are an AI travel agent assistant. Help users find:
- Flight deals and last-minute offers
- Accommodation options on Airbnb
- Complete trip planning within their budget
- Travel tips and recommendations

Be concise, helpful, and ask clarifying questions when needed.`

	recommendationTemperature = 0.7
	recommendationMaxTokens   = 800
	chatTemperature           = 0.8
	chatMaxTokens             = 500
)

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Message is one chat message sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Roles understood by every Completer.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// CompletionRequest is a single-turn text generation request.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Completer is the upstream text-generation provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// TripContext is what the recommendation is written about.
type TripContext struct {
	Flights             []models.FlightOffer
	Accommodations      []models.LodgingListing
	Budget              float64
	FlightCost          float64
	AccommodationBudget float64
	Nights              int
	Preferences         models.Preferences
	Destination         string
}

// Generator writes trip recommendations and answers free-form questions.
type Generator struct {
	completer Completer
	logger    *slog.Logger
	enabled   func() bool
}

// NewGenerator creates a new Generator. enabled gates Describe; a nil func
// leaves it always on.
func NewGenerator(completer Completer, logger *slog.Logger, enabled func() bool) *Generator {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Generator{
		completer: completer,
		logger:    logger,
		enabled:   enabled,
	}
}

// Describe returns a recommendation for the trip. It never fails; any error
// yields FallbackRecommendation.
func (g *Generator) Describe(ctx context.Context, trip TripContext) string {
	if !g.enabled() {
		return FallbackRecommendation
	}

	text, err := g.completer.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: advisorSystemPrompt},
			{Role: RoleUser, Content: BuildPrompt(trip)},
		},
		Temperature: recommendationTemperature,
		MaxTokens:   recommendationMaxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		metrics.UpstreamError(metrics.ProviderOpenAI)
		metrics.NarrativeFallback()
		g.logger.Warn("recommendation generation failed", "destination", trip.Destination, "error", err)
		return FallbackRecommendation
	}

	return text
}

// Chat answers a single traveller message. Context, when given, is passed to
// the provider as extra system guidance.
func (g *Generator) Chat(ctx context.Context, message string, chatContext map[string]any) (string, error) {
	messages := []Message{{Role: RoleSystem, Content: assistantSystemPrompt}}
	if len(chatContext) > 0 {
		if raw, err := json.Marshal(chatContext); err == nil {
			messages = append(messages, Message{Role: RoleSystem, Content: "Conversation context: " + string(raw)})
		}
	}
	messages = append(messages, Message{Role: RoleUser, Content: message})

	text, err := g.completer.Complete(ctx, CompletionRequest{
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		metrics.UpstreamError(metrics.ProviderOpenAI)
		g.logger.Error("chat completion failed", "error", err)
		return "", fmt.Errorf("failed to process chat: %w", err)
	}

	return text, nil
}

// BuildPrompt renders the recommendation prompt for trip.
func BuildPrompt(trip TripContext) string {
	prefs := []byte("{}")
	if len(trip.Preferences) > 0 {
		if raw, err := json.Marshal(trip.Preferences); err == nil {
			prefs = raw
		}
	}

	var b strings.Builder
	b.WriteString("As an expert travel advisor, analyze this trip data and provide personalized recommendations:\n\n")
	fmt.Fprintf(&b, "Budget: $%s\n", amount(trip.Budget))
	fmt.Fprintf(&b, "Destination: %s\n", trip.Destination)
	fmt.Fprintf(&b, "Number of nights: %d\n", trip.Nights)
	fmt.Fprintf(&b, "Flight cost: $%s\n", amount(trip.FlightCost))
	fmt.Fprintf(&b, "Remaining for accommodation: $%s\n\n", amount(trip.AccommodationBudget))
	fmt.Fprintf(&b, "Available Flights: %d\n", len(trip.Flights))
	fmt.Fprintf(&b, "Available Accommodations: %d\n\n", len(trip.Accommodations))
	fmt.Fprintf(&b, "User Preferences: %s\n\n", prefs)
	b.WriteString("Please provide:\n")
	b.WriteString("1. Best flight and accommodation combination for value\n")
	b.WriteString("2. Budget breakdown recommendations\n")
	b.WriteString("3. Tips for saving money\n")
	b.WriteString("4. What to do with any remaining budget\n")
	b.WriteString("5. Alternative suggestions if budget is tight\n\n")
	b.WriteString("Keep the response concise and practical.")
	return b.String()
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
