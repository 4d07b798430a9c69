package cart

import (
	"time"

	"cartengine/internal/config"
)

// Options tunes a cart handle. Zero limits disable the corresponding guard.
type Options struct {
	Instance         string
	Currency         string
	Precision        int32
	MaxItems         int
	MaxQuantity      int
	MaxPayloadBytes  int
	ConflictMinorGap int64
	Retry            RetryOptions
}

// RetryOptions bounds the optimistic-conflict retry loop.
type RetryOptions struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// OptionsFromConfig maps runtime configuration onto cart options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Instance:         cfg.DefaultInstance,
		Currency:         cfg.DefaultCurrency,
		Precision:        cfg.DefaultPrecision,
		MaxItems:         cfg.MaxItems,
		MaxQuantity:      cfg.MaxQuantity,
		MaxPayloadBytes:  cfg.MaxPayloadBytes,
		ConflictMinorGap: cfg.ConflictMinorGap,
		Retry: RetryOptions{
			Enabled:     cfg.RetryEnabled,
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.Instance == "" {
		o.Instance = "default"
	}
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Precision == 0 {
		o.Precision = 2
	}
	return o
}
