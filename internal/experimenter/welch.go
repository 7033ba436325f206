// Package experimenter implements the Mutation Run Experimenter: a paired-experiment
// scheduler that adaptively chooses mutrun_count by comparing per-generation
// wall-time samples with Welch's t-test, per spec §4.2.
package experimenter

import "math"

// WelchResult is the outcome of a two-sample Welch's t-test.
type WelchResult struct {
	T          float64
	DF         float64
	P          float64
	MeanA      float64
	MeanB      float64
}

// WelchTTest compares two independent samples of unequal variance, returning the
// t-statistic, Welch-Satterthwaite degrees of freedom, and a two-tailed p-value.
// Grounded on fitness-evaluator.go's small, pure, numeric-helper style (`Wilson`,
// `calculateP95`) alongside the stateful scheduler in experiment.go — no statistics
// library appears anywhere in the retrieved corpus, so this is implemented directly
// on stdlib `math` (documented in DESIGN.md as the one unavoidable stdlib-only
// component).
func WelchTTest(a, b []float64) WelchResult {
	if len(a) < 2 || len(b) < 2 {
		return WelchResult{}
	}
	meanA, varA := meanVariance(a)
	meanB, varB := meanVariance(b)
	nA, nB := float64(len(a)), float64(len(b))

	seA := varA / nA
	seB := varB / nB
	se := seA + seB
	if se == 0 {
		return WelchResult{MeanA: meanA, MeanB: meanB}
	}

	t := (meanA - meanB) / math.Sqrt(se)
	df := se * se / (seA*seA/(nA-1) + seB*seB/(nB-1))
	p := twoTailedP(t, df)

	return WelchResult{T: t, DF: df, P: p, MeanA: meanA, MeanB: meanB}
}

func meanVariance(xs []float64) (mean, variance float64) {
	n := float64(len(xs))
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / n

	sqDiff := 0.0
	for _, x := range xs {
		d := x - mean
		sqDiff += d * d
	}
	variance = sqDiff / (n - 1)
	return mean, variance
}

// twoTailedP approximates the two-tailed p-value for Student's t distribution with
// df degrees of freedom, via the regularized incomplete beta function.
func twoTailedP(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	x := df / (df + t*t)
	p := incompleteBeta(x, df/2, 0.5)
	return p
}

// incompleteBeta computes the regularized incomplete beta function I_x(a, b) via a
// continued-fraction expansion (Numerical Recipes' betacf), sufficient precision for
// the experimenter's p-value comparisons.
func incompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b) + a*math.Log(x) + b*math.Log(1-x)
	bt := math.Exp(lbeta)

	if x < (a+1)/(a+b+2) {
		return bt * betacf(x, a, b) / a
	}
	return 1 - bt*betacf(1-x, b, a)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func betacf(x, a, b float64) float64 {
	const maxIter = 200
	const eps = 3e-12
	const fpmin = 1e-300

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpmin {
		d = fpmin
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		m2 := float64(2 * m)
		aa := float64(m) * (b - float64(m)) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		h *= d * c

		aa = -(a + float64(m)) * (qab + float64(m)) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}
