package ev

import "math"

// TLower is an EWMA mean/variance tracker over realized pips net of
// cost, producing a normal-quantile lower bound. Advisory only: it is
// reported alongside the Beta-Binomial gate but never gates admission.
type TLower struct {
	Alpha float64 `json:"alpha"` // EWMA smoothing factor
	Conf  float64 `json:"conf"`
	Mean  float64 `json:"mean"`
	Var   float64 `json:"var"`
	N     int64   `json:"n"`
}

// NewTLower creates a tracker with smoothing alpha and confidence conf.
func NewTLower(alpha, conf float64) *TLower {
	return &TLower{Alpha: alpha, Conf: conf}
}

// Observe folds one realized outcome (pips net of cost) into the EWMA
// mean and variance.
func (t *TLower) Observe(x float64) {
	t.N++
	if t.N == 1 {
		t.Mean = x
		t.Var = 0
		return
	}
	delta := x - t.Mean
	t.Mean += t.Alpha * delta
	t.Var = (1-t.Alpha)*(t.Var + t.Alpha*delta*delta)
}

// Lower returns the conf-level lower bound on the mean outcome.
// With fewer than two observations there is no variance estimate and
// the raw mean is returned.
func (t *TLower) Lower() float64 {
	if t.N < 2 {
		return t.Mean
	}
	z := normInvCDF(1 - t.Conf)
	return t.Mean + z*math.Sqrt(t.Var)
}

// normInvCDF approximates the standard normal quantile (Acklam's
// rational approximation, |relative error| < 1.15e-9).
func normInvCDF(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const plow = 0.02425
	switch {
	case p < plow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > 1-plow:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
