package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Amadeus   AmadeusConfig   `json:"amadeus" yaml:"amadeus"`
	Airbnb    AirbnbConfig    `json:"airbnb" yaml:"airbnb"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Features  FeaturesConfig  `json:"features" yaml:"features"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port string `json:"port" yaml:"port" env:"PORT" env-default:"3000"`
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Env  string `json:"env" yaml:"env" env:"NODE_ENV" env-default:"development"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes
	MaxRequestBodySize int64 `json:"max_request_body_size" yaml:"max_request_body_size" env:"MAX_REQUEST_BODY_SIZE" env-default:"10485760"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"*"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Rate    int  `json:"rate" yaml:"rate" env:"RATE_LIMIT_RATE" env-default:"100"`
	Window  int  `json:"window" yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"60"` // in seconds
}

// CacheConfig selects and sizes the upstream-response cache.
type CacheConfig struct {
	Backend       string `json:"backend" yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"` // memory | redis | sqlite
	TTLSeconds    int    `json:"ttl_seconds" yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"3600"`
	MaxEntries    int    `json:"max_entries" yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"1000"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	SQLitePath    string `json:"sqlite_path" yaml:"sqlite_path" env:"CACHE_SQLITE_PATH" env-default:"./travel_cache.db"`
}

// AmadeusConfig holds flight provider credentials.
type AmadeusConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key" env:"AMADEUS_API_KEY"`
	APISecret string `json:"api_secret" yaml:"api_secret" env:"AMADEUS_API_SECRET"`
	BaseURL   string `json:"base_url" yaml:"base_url" env:"AMADEUS_BASE_URL" env-default:"https://test.api.amadeus.com"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms" env:"AMADEUS_TIMEOUT_MS" env-default:"15000"`
}

// AirbnbConfig holds lodging provider credentials.
type AirbnbConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key" env:"AIRBNB_API_KEY"`
	Host      string `json:"host" yaml:"host" env:"AIRBNB_API_HOST" env-default:"airbnb13.p.rapidapi.com"`
	BaseURL   string `json:"base_url" yaml:"base_url" env:"AIRBNB_BASE_URL" env-default:"https://airbnb13.p.rapidapi.com"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms" env:"AIRBNB_TIMEOUT_MS" env-default:"15000"`
}

// OpenAIConfig holds text-generation provider settings.
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `json:"model" yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4-turbo-preview"`
	BaseURL string `json:"base_url" yaml:"base_url" env:"OPENAI_BASE_URL"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"http://localhost:14268/api/traces"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"TRACING_SERVICE_NAME" env-default:"travel-agent-api"`
}

// EventsConfig controls trip event fan-out. An empty broker list keeps
// events in-process.
type EventsConfig struct {
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers" env:"EVENTS_KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic" env:"EVENTS_KAFKA_TOPIC" env-default:"trip-events"`
}

// FeaturesConfig holds the initial state of runtime feature flags.
type FeaturesConfig struct {
	CacheEnabled        bool `json:"cache_enabled" yaml:"cache_enabled" env:"FEATURE_CACHE_ENABLED" env-default:"true"`
	NarrativeEnabled    bool `json:"narrative_enabled" yaml:"narrative_enabled" env:"FEATURE_NARRATIVE_ENABLED" env-default:"true"`
	CheapestFlightFirst bool `json:"cheapest_flight_first" yaml:"cheapest_flight_first" env:"FEATURE_CHEAPEST_FLIGHT_FIRST" env-default:"true"`
}

// LoadConfig loads configuration from an optional file (JSON, YAML or .env)
// and then from environment variables, which take precedence.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration and returns any errors. Upstream
// credentials are deliberately not checked here; a missing key surfaces as
// an authentication failure on first use.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis":
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("cache sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	return nil
}

// CacheTTL returns the cache time-to-live as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Security.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
