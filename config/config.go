// Package config holds the run parameters of the trainer. The defaults are the
// fixed constants of the GTSRB setup; TRAFFIC_* environment variables (or a
// .env file) may override them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	Epochs        = 10
	ImageWidth    = 30
	ImageHeight   = 30
	NumCategories = 43
	TestSize      = 0.4
)

// EnvPrefix is prepended to every variable name read by Load.
const EnvPrefix = "TRAFFIC_"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Epochs        int     `env:"EPOCHS"`
	ImageWidth    int     `env:"IMG_WIDTH"`
	ImageHeight   int     `env:"IMG_HEIGHT"`
	NumCategories int     `env:"NUM_CATEGORIES"`
	TestSize      float64 `env:"TEST_SIZE"`

	BatchSize    int     `env:"BATCH_SIZE"`
	LearningRate float64 `env:"LEARNING_RATE"`
	DropoutRate  float64 `env:"DROPOUT"`

	// Seed drives the train/test split, the epoch shuffles and weight
	// initialisation. Zero means seed from the clock.
	Seed int64 `env:"SEED"`

	// SkipInvalidImages makes the loader log and skip files it cannot decode
	// instead of failing the whole load.
	SkipInvalidImages bool `env:"SKIP_INVALID_IMAGES"`

	LogLevel string `env:"LOG_LEVEL"`
	PlotLog  string `env:"PLOT_LOG"`
}

func Default() Config {
	return Config{
		Epochs:        Epochs,
		ImageWidth:    ImageWidth,
		ImageHeight:   ImageHeight,
		NumCategories: NumCategories,
		TestSize:      TestSize,
		BatchSize:     32,
		LearningRate:  0.001,
		DropoutRate:   0.5,
		LogLevel:      "info",
	}
}

// Load returns the defaults overlaid with the environment. A missing .env
// file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment only")
	}

	cfg := Default()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return invalid("epochs", c.Epochs)
	case c.ImageWidth <= 0:
		return invalid("image width", c.ImageWidth)
	case c.ImageHeight <= 0:
		return invalid("image height", c.ImageHeight)
	case c.NumCategories <= 0:
		return invalid("number of categories", c.NumCategories)
	case c.TestSize <= 0 || c.TestSize >= 1:
		return invalid("test size", c.TestSize)
	case c.BatchSize <= 0:
		return invalid("batch size", c.BatchSize)
	case c.LearningRate <= 0:
		return invalid("learning rate", c.LearningRate)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return invalid("dropout rate", c.DropoutRate)
	}
	return nil
}

func invalid(field string, v any) error {
	return fmt.Errorf("%w: %s %v out of range", ErrInvalid, field, v)
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// EnvVars describes the overridable settings together with their current
// values, for usage output.
func (c Config) EnvVars() []EnvVar {
	return []EnvVar{
		{EnvPrefix + "EPOCHS", c.Epochs, "Training passes over the train partition"},
		{EnvPrefix + "IMG_WIDTH", c.ImageWidth, "Width images are resized to"},
		{EnvPrefix + "IMG_HEIGHT", c.ImageHeight, "Height images are resized to"},
		{EnvPrefix + "NUM_CATEGORIES", c.NumCategories, "Number of sign categories"},
		{EnvPrefix + "TEST_SIZE", c.TestSize, "Held-out fraction used for evaluation"},
		{EnvPrefix + "BATCH_SIZE", c.BatchSize, "Minibatch size"},
		{EnvPrefix + "LEARNING_RATE", c.LearningRate, "Adam learning rate"},
		{EnvPrefix + "DROPOUT", c.DropoutRate, "Dropout rate before the output layer"},
		{EnvPrefix + "SEED", c.Seed, "Random seed (0 seeds from the clock)"},
		{EnvPrefix + "SKIP_INVALID_IMAGES", c.SkipInvalidImages, "Skip undecodable images instead of failing"},
		{EnvPrefix + "LOG_LEVEL", c.LogLevel, "debug, info, warn or error"},
		{EnvPrefix + "PLOT_LOG", c.PlotLog, "File to append per-epoch training history to"},
	}
}
