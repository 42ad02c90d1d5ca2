// Package slip learns realized entry slippage per spread band with an
// exponentially-weighted moving average. The learned coefficients feed
// the sizing gate's expected-slip check and the net-pips calculation of
// closed trades.
package slip

// Estimator tracks one EWMA slippage coefficient per spread band.
type Estimator struct {
	base  float64
	alpha float64
	curve map[string]float64
	seen  map[string]bool
}

// NewEstimator creates an estimator. base is the cold-start coefficient
// in pips used before a band has any observation; alpha is the EWMA
// smoothing factor.
func NewEstimator(base, alpha float64) *Estimator {
	return &Estimator{
		base:  base,
		alpha: alpha,
		curve: make(map[string]float64),
		seen:  make(map[string]bool),
	}
}

// Expected returns the expected entry slippage in pips for a spread
// band. Bands without observations fall back to half the quoted spread
// plus the base coefficient, so sizing stays deterministic on fresh
// state.
func (e *Estimator) Expected(band string, spreadPips float64) float64 {
	if e.seen[band] {
		return e.curve[band]
	}
	return e.base + spreadPips/2
}

// Observe folds one realized slippage observation (pips) into the
// band's coefficient.
func (e *Estimator) Observe(band string, slipPips float64) {
	if !e.seen[band] {
		e.curve[band] = slipPips
		e.seen[band] = true
		return
	}
	e.curve[band] = (1-e.alpha)*e.curve[band] + e.alpha*slipPips
}

// State is the persisted shape of the estimator.
type State struct {
	A         float64            `json:"a"`
	Curve     map[string]float64 `json:"curve"`
	EWMAAlpha float64            `json:"ewma_alpha"`
}

// Export snapshots the coefficients.
func (e *Estimator) Export() State {
	curve := make(map[string]float64, len(e.curve))
	for k, v := range e.curve {
		curve[k] = v
	}
	return State{A: e.base, Curve: curve, EWMAAlpha: e.alpha}
}

// Restore replaces the coefficients from a snapshot.
func (e *Estimator) Restore(st State) {
	e.base = st.A
	e.alpha = st.EWMAAlpha
	e.curve = make(map[string]float64, len(st.Curve))
	e.seen = make(map[string]bool, len(st.Curve))
	for k, v := range st.Curve {
		e.curve[k] = v
		e.seen[k] = true
	}
}
