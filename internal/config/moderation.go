package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvAWSRegion = "VIGIL_AWS_REGION"

	EnvModerationMinConfidence = "VIGIL_MODERATION_MIN_CONFIDENCE"
	EnvModerationReviewLower   = "VIGIL_MODERATION_REVIEW_LOWER"
	EnvModerationReviewUpper   = "VIGIL_MODERATION_REVIEW_UPPER"
	EnvModerationConcurrency   = "VIGIL_MODERATION_CONCURRENCY"
	EnvModerationRate          = "VIGIL_MODERATION_RATE_PER_SECOND"
	EnvModerationMaxAttempts   = "VIGIL_MODERATION_MAX_ATTEMPTS"
	EnvModerationBackoff       = "VIGIL_MODERATION_BACKOFF"
	EnvModerationInputPrefix   = "VIGIL_MODERATION_INPUT_PREFIX"
	EnvModerationPlaceholder   = "VIGIL_MODERATION_PLACEHOLDER"
)

// AWSConfig holds the region shared by every AWS client.
type AWSConfig struct {
	Region string `toml:"region"`
}

// Finalize applies environment variable overrides. An empty region defers to
// the SDK's own resolution chain.
func (c *AWSConfig) Finalize() error {
	if v := os.Getenv(EnvAWSRegion); v != "" {
		c.Region = v
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *AWSConfig) Merge(overlay *AWSConfig) {
	if overlay.Region != "" {
		c.Region = overlay.Region
	}
}

// ModerationConfig holds classification and batch execution parameters.
type ModerationConfig struct {
	MinConfidence float64 `toml:"min_confidence"`
	ReviewLower   float64 `toml:"review_lower"`
	ReviewUpper   float64 `toml:"review_upper"`
	Concurrency   int     `toml:"concurrency"`
	RatePerSecond float64 `toml:"rate_per_second"`
	MaxAttempts   int     `toml:"max_attempts"`
	Backoff       string  `toml:"backoff"`
	InputPrefix   string  `toml:"input_prefix"`
	Placeholder   string  `toml:"placeholder"`
}

// BackoffDuration returns Backoff as a time.Duration.
func (c *ModerationConfig) BackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.Backoff)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ModerationConfig) Finalize() error {
	c.loadDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ModerationConfig) Merge(overlay *ModerationConfig) {
	if overlay.MinConfidence != 0 {
		c.MinConfidence = overlay.MinConfidence
	}
	if overlay.ReviewLower != 0 {
		c.ReviewLower = overlay.ReviewLower
	}
	if overlay.ReviewUpper != 0 {
		c.ReviewUpper = overlay.ReviewUpper
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.RatePerSecond != 0 {
		c.RatePerSecond = overlay.RatePerSecond
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.Backoff != "" {
		c.Backoff = overlay.Backoff
	}
	if overlay.InputPrefix != "" {
		c.InputPrefix = overlay.InputPrefix
	}
	if overlay.Placeholder != "" {
		c.Placeholder = overlay.Placeholder
	}
}

func (c *ModerationConfig) loadDefaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 50
	}
	if c.ReviewLower == 0 {
		c.ReviewLower = 50
	}
	if c.ReviewUpper == 0 {
		c.ReviewUpper = 100
	}
	if c.Concurrency == 0 {
		c.Concurrency = 8
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 5
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff == "" {
		c.Backoff = "2s"
	}
	if c.InputPrefix == "" {
		c.InputPrefix = "input/"
	}
	if c.Placeholder == "" {
		c.Placeholder = ".temp"
	}
}

func (c *ModerationConfig) loadEnv() error {
	floats := map[string]*float64{
		EnvModerationMinConfidence: &c.MinConfidence,
		EnvModerationReviewLower:   &c.ReviewLower,
		EnvModerationReviewUpper:   &c.ReviewUpper,
		EnvModerationRate:          &c.RatePerSecond,
	}
	for env, dst := range floats {
		if v := os.Getenv(env); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		EnvModerationConcurrency: &c.Concurrency,
		EnvModerationMaxAttempts: &c.MaxAttempts,
	}
	for env, dst := range ints {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv(EnvModerationBackoff); v != "" {
		c.Backoff = v
	}
	if v := os.Getenv(EnvModerationInputPrefix); v != "" {
		c.InputPrefix = v
	}
	if v := os.Getenv(EnvModerationPlaceholder); v != "" {
		c.Placeholder = v
	}
	return nil
}

func (c *ModerationConfig) validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence out of range: %v", c.MinConfidence)
	}
	if c.ReviewLower < 0 || c.ReviewUpper > 100 || c.ReviewLower > c.ReviewUpper {
		return fmt.Errorf("invalid review bounds: [%v, %v]", c.ReviewLower, c.ReviewUpper)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive: %d", c.Concurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive: %d", c.MaxAttempts)
	}
	if _, err := time.ParseDuration(c.Backoff); err != nil {
		return fmt.Errorf("invalid backoff: %w", err)
	}
	return nil
}
