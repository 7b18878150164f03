package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"indlink/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Link
	LinkAddr       string `default:":5128" validate:"required"`
	LinkPath       string `default:"/link" validate:"required,startswith=/"`
	LinkTOTPSecret string
	HelloTimeout   time.Duration `default:"10s" validate:"gt=0"`

	// Admin HTTP
	AdminAddr string `default:":9096" validate:"required"`

	// Collection
	ExportDir string `default:"data" validate:"required"`

	// Model. With neither set, sessions collect.
	ModelPath    string
	ModelURL     string `validate:"omitempty,url"`
	ModelTimeout time.Duration `default:"2s" validate:"gt=0"`

	// Field registration. Empty RequestedFields derives the default
	// "CLOSE[1];SMA(10)[w];SMA(25)[w]" from InputWindow.
	RequestedFields string
	InputWindow     int `default:"3" validate:"min=1"`

	// Prediction
	FeatureWidth int     `default:"3" validate:"min=1"`
	DiffRange    float64 `default:"50" validate:"gt=0"`
	PipRange     float64 `default:"35" validate:"gt=0"`
	PipSize      float64 `default:"0.0001" validate:"gt=0"`
	Precision    int     `default:"10" validate:"min=0,max=20"`
	FastField    string  `default:"SMA(10)" validate:"required"`
	SlowField    string  `default:"SMA(25)" validate:"required"`

	// Infrastructure. Empty disables the component.
	RedisAddr     string
	RedisPassword string
	JournalPath   string

	// Logging
	LogLevel  string `default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat string `default:"json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads an optional .env file, applies defaults, overrides them from
// the environment and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = time.Duration(n) * time.Millisecond
		}
	}

	str("LINK_ADDR", &cfg.LinkAddr)
	str("LINK_PATH", &cfg.LinkPath)
	str("LINK_TOTP_SECRET", &cfg.LinkTOTPSecret)
	millis("HELLO_TIMEOUT_MS", &cfg.HelloTimeout)
	str("ADMIN_ADDR", &cfg.AdminAddr)
	str("EXPORT_DIR", &cfg.ExportDir)
	str("MODEL_PATH", &cfg.ModelPath)
	str("MODEL_URL", &cfg.ModelURL)
	millis("MODEL_TIMEOUT_MS", &cfg.ModelTimeout)
	str("REQUESTED_FIELDS", &cfg.RequestedFields)
	num("INPUT_WINDOW", &cfg.InputWindow)
	num("FEATURE_WIDTH", &cfg.FeatureWidth)
	float("DIFF_RANGE", &cfg.DiffRange)
	float("PIP_RANGE", &cfg.PipRange)
	float("PIP_SIZE", &cfg.PipSize)
	num("PRECISION", &cfg.Precision)
	str("FAST_FIELD", &cfg.FastField)
	str("SLOW_FIELD", &cfg.SlowField)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("JOURNAL_PATH", &cfg.JournalPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ModelPath != "" && cfg.ModelURL != "" {
		return nil, fmt.Errorf("config: MODEL_PATH and MODEL_URL are mutually exclusive")
	}
	if _, err := cfg.Schema(); err != nil {
		return nil, fmt.Errorf("config: REQUESTED_FIELDS: %w", err)
	}
	return cfg, nil
}

// Fields returns the field registration strings in order.
func (c *Config) Fields() []string {
	if strings.TrimSpace(c.RequestedFields) == "" {
		w := strconv.Itoa(c.InputWindow)
		return []string{"CLOSE[1]", "SMA(10)[" + w + "]", "SMA(25)[" + w + "]"}
	}
	parts := strings.Split(c.RequestedFields, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Schema parses Fields into an indicator schema.
func (c *Config) Schema() (*indicator.Schema, error) {
	return indicator.NewSchema(c.Fields()...)
}

// PredictConfig returns the prediction settings.
func (c *Config) PredictConfig() indicator.PredictConfig {
	return indicator.PredictConfig{
		FeatureWidth: c.FeatureWidth,
		PipSize:      c.PipSize,
		DiffRange:    c.DiffRange,
		PipRange:     c.PipRange,
		Precision:    c.Precision,
		FastField:    c.FastField,
		SlowField:    c.SlowField,
	}
}

// HasModel reports whether sessions should predict.
func (c *Config) HasModel() bool { return c.ModelPath != "" || c.ModelURL != "" }

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", false
	}
	return v, true
}
