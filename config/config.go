package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/raine/price-estimator-bot/internal/estimator"
)

const (
	AppName     = "price-estimator-bot"
	EnvFileName = "config.env"

	ExtractorCloudVision = "cloudvision"
	ExtractorGemini      = "gemini"
)

// ErrHelp is returned by Load when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// Config holds the service settings. Every option can be given as a flag or
// through the environment.
type Config struct {
	// External services
	GoogleAPIKey   string `long:"google-api-key" env:"GOOGLE_API_KEY" description:"Google API key for Cloud Vision and Custom Search"`
	SearchEngineID string `long:"search-engine-id" env:"GOOGLE_SEARCH_ENGINE_ID" description:"Programmable Search Engine ID (cx)"`
	GeminiAPIKey   string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key, required with --extractor=gemini"`
	Extractor      string `long:"extractor" env:"EXTRACTOR" default:"cloudvision" choice:"cloudvision" choice:"gemini" description:"Visual feature extractor"`

	// Telegram
	BotToken        string `long:"bot-token" env:"BOT_TOKEN" description:"Telegram bot token, the bot is disabled when empty"`
	AdminTelegramID int64  `long:"admin-telegram-id" env:"ADMIN_TELEGRAM_ID" description:"Telegram user ID of the bot admin"`

	// Service
	DBPath            string        `long:"db-path" env:"DB_PATH" default:"estimates.db" description:"SQLite database path"`
	HTTPAddr          string        `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	SearchDelay       time.Duration `long:"search-delay" env:"SEARCH_DELAY" default:"100ms" description:"Minimum delay between search calls"`
	VisionTimeout     time.Duration `long:"vision-timeout" env:"VISION_TIMEOUT" default:"15s" description:"Timeout of one feature extraction call"`
	SearchTimeout     time.Duration `long:"search-timeout" env:"SEARCH_TIMEOUT" default:"10s" description:"Timeout of one search call"`
	VisionCacheMaxAge time.Duration `long:"vision-cache-max-age" env:"VISION_CACHE_MAX_AGE" default:"720h" description:"How long extracted features stay cached"`
	LogFile           string        `long:"log-file" env:"LOG_FILE" description:"Also write logs to this file"`
	Debug             bool          `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Load parses args and the environment into a Config. It returns ErrHelp
// when --help was given.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if IsHelp(err) {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsHelp reports whether err is go-flags' help request.
func IsHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	if c.Extractor == ExtractorGemini && strings.TrimSpace(c.GeminiAPIKey) == "" {
		return errors.New("GEMINI_API_KEY is required with the gemini extractor")
	}
	if c.BotToken != "" && c.AdminTelegramID == 0 {
		return errors.New("ADMIN_TELEGRAM_ID is required when the bot is enabled")
	}
	if c.SearchDelay < 0 || c.VisionTimeout < 0 || c.SearchTimeout < 0 {
		return errors.New("delays and timeouts must not be negative")
	}
	return nil
}

// MissingCredentials lists the unset credentials the estimator needs. The
// service still starts without them; every estimate is then empty.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if strings.TrimSpace(c.GoogleAPIKey) == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if strings.TrimSpace(c.SearchEngineID) == "" {
		missing = append(missing, "GOOGLE_SEARCH_ENGINE_ID")
	}
	return missing
}

// EstimatorConfig returns the estimator settings.
func (c *Config) EstimatorConfig() estimator.Config {
	return estimator.Config{
		APIKey:         c.GoogleAPIKey,
		SearchEngineID: c.SearchEngineID,
		MaxListings:    estimator.MaxListings,
	}
}
