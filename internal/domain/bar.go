package domain

import (
	"errors"
	"math"
	"time"
)

// DefaultPip is used when a bar carries no pip size.
// JPY-quoted FX pairs on this desk use 0.01.
const DefaultPip = 0.01

// ErrMalformedBar is returned for bars the simulation core cannot use.
// Malformed bars are skipped and counted, never fatal.
var ErrMalformedBar = errors.New("malformed bar")

// Bar is a single OHLC bar consumed by the runner.
// Bars are pre-validated upstream for OHLC sanity and timeframe;
// ValidateBasic guards the core against rows that slip through anyway.
type Bar struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	TF          string  `json:"tf"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
	Spread      float64 `json:"spread"` // quoted spread in price units
	Pip         float64 `json:"pip"`    // pip size; 0 means DefaultPip
}

// PipSize returns the bar's pip size, defaulting when zero or negative.
func (b *Bar) PipSize() float64 {
	if b.Pip > 0 {
		return b.Pip
	}
	return DefaultPip
}

// Range returns high minus low.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// SpreadPips returns the quoted spread expressed in pips.
func (b *Bar) SpreadPips() float64 {
	return b.Spread / b.PipSize()
}

// Time returns the bar timestamp as UTC time.
func (b *Bar) Time() time.Time {
	return time.UnixMilli(b.TimestampMs).UTC()
}

// Day returns the UTC calendar date, used for daily rollups and
// calibration day counting.
func (b *Bar) Day() string {
	return b.Time().Format("2006-01-02")
}

// ValidateBasic reports whether the bar is usable by the simulation core.
func (b *Bar) ValidateBasic() error {
	if b.TimestampMs <= 0 {
		return ErrMalformedBar
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return ErrMalformedBar
		}
	}
	if b.High < b.Low {
		return ErrMalformedBar
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return ErrMalformedBar
	}
	return nil
}
