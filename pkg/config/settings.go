package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Settings is the typed pipeline configuration.
// Load it with LoadSettings or build it from a Config with SettingsFromConfig.
type Settings struct {
	// Model routing
	PrimaryModel   string   `validate:"required"`
	FallbackModels []string `validate:"dive,required"`
	Temperature    float64  `validate:"gte=0,lte=2"`
	MaxTokens      int      `validate:"gt=0"`

	// Model backend
	APIBaseURL string `validate:"required,url"`
	APIKey     string

	// Image generation
	ImageModel string `validate:"required"`
	ImageSize  string `validate:"required"`

	// Persistence
	CheckpointPath string `validate:"required"`

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
}

// DefaultSettings returns settings with production defaults.
// The API key is always read from the environment, never from files.
func DefaultSettings() Settings {
	return Settings{
		PrimaryModel:   "anthropic/claude-3.5-sonnet",
		FallbackModels: []string{"openai/gpt-4o", "openai/gpt-3.5-turbo"},
		Temperature:    0.7,
		MaxTokens:      2000,
		APIBaseURL:     "https://openrouter.ai/api/v1",
		APIKey:         os.Getenv("OPENROUTER_API_KEY"),
		ImageModel:     "dall-e-3",
		ImageSize:      "1024x1024",
		CheckpointPath: "./runs.db",
		LogLevel:       "info",
	}
}

// SettingsFromConfig overlays file configuration onto the defaults.
func SettingsFromConfig(cfg Config) Settings {
	s := DefaultSettings()
	s.PrimaryModel = cfg.String("primary_model", s.PrimaryModel)
	s.FallbackModels = cfg.StringSlice("fallback_models", s.FallbackModels)
	s.Temperature = cfg.Float("temperature", s.Temperature)
	s.MaxTokens = cfg.Int("max_tokens", s.MaxTokens)
	s.APIBaseURL = cfg.String("api_base_url", s.APIBaseURL)
	s.ImageModel = cfg.String("image_model", s.ImageModel)
	s.ImageSize = cfg.String("image_size", s.ImageSize)
	s.CheckpointPath = cfg.String("checkpoint_path", s.CheckpointPath)
	s.LogLevel = cfg.String("log_level", s.LogLevel)
	return s
}

// LoadSettings loads settings from a yaml/json file and validates them.
// An empty path returns validated defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s = SettingsFromConfig(cfg)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings against their constraints.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ModelChain returns the ordered model chain: primary first, then fallbacks.
func (s Settings) ModelChain() []string {
	chain := make([]string, 0, 1+len(s.FallbackModels))
	chain = append(chain, s.PrimaryModel)
	chain = append(chain, s.FallbackModels...)
	return chain
}

var validate = validator.New(validator.WithRequiredStructEnabled())
