// Package indicators computes technical indicators over synced daily bars.
package indicators

import (
	"context"
	"errors"

	"stockSync/internal/domain"
)

// ErrInsufficientData is returned when a series is shorter than an indicator needs.
var ErrInsufficientData = errors.New("not enough data")

// Indicator represents a technical indicator that can be calculated from daily bars
type Indicator interface {
	// Calculate computes the indicator value as of the last bar
	Calculate(ctx context.Context, bars []domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
