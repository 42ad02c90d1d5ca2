package domain

import (
	"errors"
	"fmt"
	"math"
)

// EV gating modes.
const (
	EVModeLCB = "lcb" // gate on pooled lower confidence bound
	EVModeOff = "off" // threshold forced to -inf, EV never rejects
)

// Fill engine selectors.
const (
	FillEngineConservative = "conservative"
	FillEngineBridge       = "bridge"
)

// SpreadBandCut names a spread band and its inclusive upper bound in
// pips. Bands are checked in order; the last band is the unbounded
// catch-all (use MaxFloat64, not +Inf, so the config stays JSON
// encodable for fingerprinting).
type SpreadBandCut struct {
	Name    string  `json:"name"`
	MaxPips float64 `json:"max_pips"`
}

// RunnerConfig carries every knob of the simulation core. Loaded and
// merged from the manifest upstream; the core only validates it.
type RunnerConfig struct {
	Symbol string `json:"symbol"`
	TF     string `json:"tf"`

	// Admission.
	ThresholdLCBPip float64 `json:"threshold_lcb_pip"`
	EVMode          string  `json:"ev_mode"`
	WarmupTrades    int     `json:"warmup_trades"`
	MinORATRRatio   float64 `json:"min_or_atr_ratio"`
	AllowedSessions []Session `json:"allowed_sessions,omitempty"` // empty means all

	// Context bands.
	RVBandCuts  []float64       `json:"rv_band_cuts"` // quantiles, e.g. [0.33, 0.66]
	SpreadBands []SpreadBandCut `json:"spread_bands"`

	// EV priors.
	PriorAlpha float64 `json:"prior_alpha"`
	PriorBeta  float64 `json:"prior_beta"`
	EVDecay    float64 `json:"ev_decay"`
	EVConf     float64 `json:"ev_conf"`

	// Fill engines. FillEngine selects which engine drives live
	// positions; calibration shadows always run on the bridge engine
	// so soft labels bootstrap the buckets.
	FillEngine                string        `json:"fill_engine"`
	SameBarPolicyConservative SameBarPolicy `json:"same_bar_policy_conservative"`
	SameBarPolicyBridge       SameBarPolicy `json:"same_bar_policy_bridge"`
	FillBridgeLambda          float64       `json:"fill_bridge_lambda"`
	FillDriftScale            float64       `json:"fill_drift_scale"`
	SlipCapPip                float64       `json:"slip_cap_pip"`

	// Slippage learning.
	SlipBasePip   float64 `json:"slip_base_pip"`   // cold-start coefficient
	SlipEWMAAlpha float64 `json:"slip_ewma_alpha"` // EWMA smoothing factor
	TLowerAlpha   float64 `json:"t_lower_alpha"`   // advisory outcome tracker smoothing

	// Order geometry.
	TPPips    float64 `json:"tp_pips"`
	SLPips    float64 `json:"sl_pips"`
	TrailPips float64 `json:"trail_pips"`
	CostPips  float64 `json:"cost_pips"` // round-trip cost in pips

	// Sizing.
	KellyFraction float64 `json:"kelly_fraction"`
	BaseUnit      float64 `json:"base_unit"`
	HardCapQty    float64 `json:"hard_cap_qty"`
	RiskBudget    float64 `json:"risk_budget"`
	PipValue      float64 `json:"pip_value"`
	SizeFloorMult float64 `json:"size_floor_mult"` // used when EV gate is bypassed

	// Lifecycle.
	MaxHoldBars   int `json:"max_hold_bars"`
	CalibrateDays int `json:"calibrate_days"`

	// Features.
	ORBars    int `json:"or_bars"`
	ATRPeriod int `json:"atr_period"`
	ADXPeriod int `json:"adx_period"`
	RVWindow  int `json:"rv_window"`
}

// DefaultRunnerConfig returns the knobs a manifest usually leaves alone.
func DefaultRunnerConfig(symbol, tf string) RunnerConfig {
	return RunnerConfig{
		Symbol:          symbol,
		TF:              tf,
		ThresholdLCBPip: 0.5,
		EVMode:          EVModeLCB,
		WarmupTrades:    50,
		MinORATRRatio:   0.6,
		RVBandCuts:      []float64{0.33, 0.66},
		SpreadBands: []SpreadBandCut{
			{Name: "narrow", MaxPips: 0.8},
			{Name: "normal", MaxPips: 1.5},
			{Name: "wide", MaxPips: math.MaxFloat64},
		},
		PriorAlpha:                1,
		PriorBeta:                 1,
		EVDecay:                   0.02,
		EVConf:                    0.95,
		FillEngine:                FillEngineConservative,
		SameBarPolicyConservative: PolicySLFirst,
		SameBarPolicyBridge:       PolicyProbabilistic,
		FillBridgeLambda:          0.30,
		FillDriftScale:            2.0,
		SlipCapPip:                1.5,
		SlipBasePip:               0.1,
		SlipEWMAAlpha:             0.2,
		TLowerAlpha:               0.1,
		TPPips:                    12,
		SLPips:                    8,
		TrailPips:                 0,
		CostPips:                  0.3,
		KellyFraction:             0.25,
		BaseUnit:                  10000,
		HardCapQty:                50000,
		RiskBudget:                300,
		PipValue:                  0.09,
		SizeFloorMult:             0.05,
		MaxHoldBars:               36,
		CalibrateDays:             0,
		ORBars:                    6,
		ATRPeriod:                 14,
		ADXPeriod:                 14,
		RVWindow:                  48,
	}
}

// Validate checks required fields. A failure here is a config error:
// fatal at load time, before any bar is processed.
func (c *RunnerConfig) Validate() error {
	if c.Symbol == "" {
		return errors.New("config: symbol is required")
	}
	if c.TF == "" {
		return errors.New("config: tf is required")
	}
	if c.EVMode != EVModeLCB && c.EVMode != EVModeOff {
		return fmt.Errorf("config: unknown ev_mode %q", c.EVMode)
	}
	if c.TPPips <= 0 || c.SLPips <= 0 {
		return errors.New("config: tp_pips and sl_pips must be positive")
	}
	if c.EVDecay < 0 || c.EVDecay >= 1 {
		return fmt.Errorf("config: ev_decay %v outside [0,1)", c.EVDecay)
	}
	if c.EVConf <= 0 || c.EVConf >= 1 {
		return fmt.Errorf("config: ev_conf %v outside (0,1)", c.EVConf)
	}
	if c.PriorAlpha < 0 || c.PriorBeta < 0 {
		return errors.New("config: priors must be non-negative")
	}
	if c.WarmupTrades < 0 {
		return errors.New("config: warmup_trades must be non-negative")
	}
	if c.MaxHoldBars <= 0 {
		return errors.New("config: max_hold_bars must be positive")
	}
	if c.ORBars <= 0 {
		return errors.New("config: or_bars must be positive")
	}
	if len(c.SpreadBands) == 0 {
		return errors.New("config: spread_bands must not be empty")
	}
	if c.SlipEWMAAlpha < 0 || c.SlipEWMAAlpha > 1 {
		return fmt.Errorf("config: slip_ewma_alpha %v outside [0,1]", c.SlipEWMAAlpha)
	}
	if c.TLowerAlpha < 0 || c.TLowerAlpha > 1 {
		return fmt.Errorf("config: t_lower_alpha %v outside [0,1]", c.TLowerAlpha)
	}
	if c.FillEngine != FillEngineConservative && c.FillEngine != FillEngineBridge {
		return fmt.Errorf("config: unknown fill_engine %q", c.FillEngine)
	}
	switch c.SameBarPolicyConservative {
	case PolicySLFirst, PolicyTPFirst, PolicyProbabilistic:
	default:
		return fmt.Errorf("config: unknown conservative same-bar policy %q", c.SameBarPolicyConservative)
	}
	switch c.SameBarPolicyBridge {
	case PolicySLFirst, PolicyTPFirst, PolicyProbabilistic:
	default:
		return fmt.Errorf("config: unknown bridge same-bar policy %q", c.SameBarPolicyBridge)
	}
	return nil
}

// SpreadBandFor resolves the spread band name for a spread in pips.
func (c *RunnerConfig) SpreadBandFor(spreadPips float64) string {
	for _, b := range c.SpreadBands {
		if spreadPips <= b.MaxPips {
			return b.Name
		}
	}
	return c.SpreadBands[len(c.SpreadBands)-1].Name
}

// SessionAllowed reports whether trading is admitted in the session.
func (c *RunnerConfig) SessionAllowed(s Session) bool {
	if len(c.AllowedSessions) == 0 {
		return true
	}
	for _, a := range c.AllowedSessions {
		if a == s {
			return true
		}
	}
	return false
}
