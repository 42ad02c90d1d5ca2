package ev

import (
	"sort"

	"orb-strategy-lab/internal/domain"
)

// Default pooling weights.
const (
	DefaultLambdaGlobal   = 0.30
	DefaultLambdaNeighbor = 0.20
)

// Pooled blends a bucket's own decayed counts with smoothed
// contributions from neighbor buckets and a global pool:
//
//	a_eff = a_bucket + Σ λ_neighbor·a_neighbor + λ_global·a_global
//
// (symmetric for b). Updates write through to the invoked bucket and
// the global estimator only; neighbors are never mutated.
//
// Pooled is explicitly owned by its runner and passed by reference. It
// is not safe for concurrent use; the bar loop is single-threaded.
type Pooled struct {
	priorAlpha     float64
	priorBeta      float64
	decay          float64
	conf           float64
	lambdaGlobal   float64
	lambdaNeighbor float64

	buckets map[string]*BetaBinomial
	global  *BetaBinomial
}

// PooledOptions configures a Pooled manager. Zero lambda weights fall
// back to the defaults.
type PooledOptions struct {
	PriorAlpha     float64
	PriorBeta      float64
	Decay          float64
	Conf           float64
	LambdaGlobal   float64
	LambdaNeighbor float64
}

// NewPooled creates an empty pooled manager.
func NewPooled(opts PooledOptions) *Pooled {
	lg := opts.LambdaGlobal
	if lg == 0 {
		lg = DefaultLambdaGlobal
	}
	ln := opts.LambdaNeighbor
	if ln == 0 {
		ln = DefaultLambdaNeighbor
	}
	return &Pooled{
		priorAlpha:     opts.PriorAlpha,
		priorBeta:      opts.PriorBeta,
		decay:          opts.Decay,
		conf:           opts.Conf,
		lambdaGlobal:   lg,
		lambdaNeighbor: ln,
		buckets:        make(map[string]*BetaBinomial),
		global:         NewBetaBinomial(opts.PriorAlpha, opts.PriorBeta, opts.Decay, opts.Conf),
	}
}

// Bucket returns the estimator for key, creating it on first use.
func (p *Pooled) Bucket(key domain.EVBucketKey) *BetaBinomial {
	k := key.String()
	b, ok := p.buckets[k]
	if !ok {
		b = NewBetaBinomial(p.priorAlpha, p.priorBeta, p.decay, p.conf)
		p.buckets[k] = b
	}
	return b
}

// Global returns the global pool estimator.
func (p *Pooled) Global() *BetaBinomial { return p.global }

// Update writes a hard-labeled outcome through to the bucket and the
// global pool.
func (p *Pooled) Update(key domain.EVBucketKey, hit bool) {
	p.Bucket(key).Update(hit)
	p.global.Update(hit)
}

// UpdateWeighted writes a soft-labeled outcome through to the bucket
// and the global pool.
func (p *Pooled) UpdateWeighted(key domain.EVBucketKey, w float64) {
	p.Bucket(key).UpdateWeighted(w)
	p.global.UpdateWeighted(w)
}

// PLCB returns the lower-confidence-bound win probability for key,
// computed from the pooled effective counts.
func (p *Pooled) PLCB(key domain.EVBucketKey) float64 {
	aEff, bEff := p.effectiveCounts(key)
	return BetaInvCDF(p.priorAlpha+aEff, p.priorBeta+bEff, 1-p.conf)
}

// EVLCBOCO converts the pooled LCB win probability into an expected
// value in pips for an OCO bracket: p·tp - (1-p)·sl - cost.
func (p *Pooled) EVLCBOCO(key domain.EVBucketKey, tpPips, slPips, costPips float64) float64 {
	plcb := p.PLCB(key)
	return plcb*tpPips - (1-plcb)*slPips - costPips
}

func (p *Pooled) effectiveCounts(key domain.EVBucketKey) (float64, float64) {
	key = key.Resolve()
	own := p.Bucket(key)
	aEff := own.Alpha
	bEff := own.Beta

	for _, nk := range p.neighborKeys(key) {
		if nb, ok := p.buckets[nk]; ok {
			aEff += p.lambdaNeighbor * nb.Alpha
			bEff += p.lambdaNeighbor * nb.Beta
		}
	}

	aEff += p.lambdaGlobal * p.global.Alpha
	bEff += p.lambdaGlobal * p.global.Beta
	return aEff, bEff
}

// neighborKeys returns the keys of instantiated buckets that differ
// from key in exactly one component, in sorted order for determinism.
func (p *Pooled) neighborKeys(key domain.EVBucketKey) []string {
	self := key.String()
	var out []string
	for k := range p.buckets {
		if k == self {
			continue
		}
		nk, err := domain.ParseBucketKey(k)
		if err != nil {
			continue
		}
		diff := 0
		if nk.Session != key.Session {
			diff++
		}
		if nk.SpreadBand != key.SpreadBand {
			diff++
		}
		if nk.RVBand != key.RVBand {
			diff++
		}
		if diff == 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// BucketCounts is the persisted shape of one bucket's counts.
type BucketCounts struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// ExportBuckets snapshots every instantiated bucket's counts.
func (p *Pooled) ExportBuckets() map[string]BucketCounts {
	out := make(map[string]BucketCounts, len(p.buckets))
	for k, b := range p.buckets {
		out[k] = BucketCounts{Alpha: b.Alpha, Beta: b.Beta}
	}
	return out
}

// RestoreBuckets replaces all bucket counts from a snapshot.
func (p *Pooled) RestoreBuckets(counts map[string]BucketCounts) {
	p.buckets = make(map[string]*BetaBinomial, len(counts))
	for k, c := range counts {
		b := NewBetaBinomial(p.priorAlpha, p.priorBeta, p.decay, p.conf)
		b.Alpha = c.Alpha
		b.Beta = c.Beta
		p.buckets[k] = b
	}
}
