package indicators

import (
	"context"
	"errors"
	"time"

	"stockSync/internal/domain"
)

// Summary is a snapshot of common indicators as of the last bar of a series.
// A nil field means the series was too short for that indicator.
type Summary struct {
	LastDate  time.Time
	LastClose float64
	SMA20     *float64
	SMA50     *float64
	EMA20     *float64
	RSI14     *float64
	RSIZone   string // ZoneOverbought, ZoneOversold or ZoneNeutral; empty without RSI14
	ATR14     *float64
}

// Summarize computes the default indicator set over bars, which must be in date order.
// It returns nil for an empty series.
func Summarize(ctx context.Context, bars []domain.Bar) (*Summary, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	last := bars[len(bars)-1]
	s := &Summary{LastDate: last.Date, LastClose: last.Close}
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}, Overbought: 70, Oversold: 30})

	targets := []struct {
		dst **float64
		ind Indicator
	}{
		{&s.SMA20, NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 20}, Type: SimpleMovingAverage})},
		{&s.SMA50, NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 50}, Type: SimpleMovingAverage})},
		{&s.EMA20, NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: 20}, Type: ExponentialMovingAverage})},
		{&s.RSI14, rsi},
		{&s.ATR14, NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}})},
	}
	for _, t := range targets {
		v, err := t.ind.Calculate(ctx, bars)
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		*t.dst = &v
	}
	if s.RSI14 != nil {
		s.RSIZone = rsi.Zone(*s.RSI14)
	}
	return s, nil
}

// Fields flattens the summary for structured logging.
func (s *Summary) Fields() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	fields := map[string]interface{}{
		"lastDate":  s.LastDate.Format(domain.DateLayout),
		"lastClose": s.LastClose,
	}
	if s.RSIZone != "" {
		fields["rsiZone"] = s.RSIZone
	}
	for name, v := range map[string]*float64{"sma20": s.SMA20, "sma50": s.SMA50, "ema20": s.EMA20, "rsi14": s.RSI14, "atr14": s.ATR14} {
		if v != nil {
			fields[name] = *v
		}
	}
	return fields
}
