// Package ev maintains decayed Bayesian win-rate statistics and blends
// them into conservative (lower-confidence-bound) estimates that gate
// trade admission.
package ev

// BetaBinomial tracks a decayed Beta-Binomial win-rate estimate.
// Alpha/Beta are the decayed observation counts; the priors are added
// only when a quantile is taken, so pooling composes raw counts.
type BetaBinomial struct {
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
	Decay      float64 `json:"decay"`
	Conf       float64 `json:"conf"`
	PriorAlpha float64 `json:"prior_alpha"`
	PriorBeta  float64 `json:"prior_beta"`
}

// NewBetaBinomial creates an estimator with zero observed counts.
func NewBetaBinomial(priorAlpha, priorBeta, decay, conf float64) *BetaBinomial {
	return &BetaBinomial{
		Decay:      decay,
		Conf:       conf,
		PriorAlpha: priorAlpha,
		PriorBeta:  priorBeta,
	}
}

// Update folds in one hard-labeled outcome.
func (e *BetaBinomial) Update(hit bool) {
	h := 0.0
	if hit {
		h = 1.0
	}
	e.UpdateWeighted(h)
}

// UpdateWeighted folds in a fractional (soft) label w in [0,1]:
//
//	alpha = (1-decay)*alpha + w
//	beta  = (1-decay)*beta + (1-w)
//
// Counts never go negative for w in range.
func (e *BetaBinomial) UpdateWeighted(w float64) {
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	e.Alpha = (1-e.Decay)*e.Alpha + w
	e.Beta = (1-e.Decay)*e.Beta + (1 - w)
}

// PLCB returns the (1-conf)-quantile of Beta(prior_alpha+alpha,
// prior_beta+beta): a conservative estimate of the win probability.
func (e *BetaBinomial) PLCB() float64 {
	return BetaInvCDF(e.PriorAlpha+e.Alpha, e.PriorBeta+e.Beta, 1-e.Conf)
}

// Mean returns the posterior mean win probability.
func (e *BetaBinomial) Mean() float64 {
	a := e.PriorAlpha + e.Alpha
	b := e.PriorBeta + e.Beta
	if a+b <= 0 {
		return 0.5
	}
	return a / (a + b)
}
