package services

import (
	"math"

	"github.com/autosem/autosem-backend/internal/types"
)

// ZTestResult is the outcome of comparing two ad arms by CTR.
type ZTestResult struct {
	RateOriginal float64 `json:"rate_original"`
	RateVariant  float64 `json:"rate_variant"`
	PooledRate   float64 `json:"pooled_rate"`
	ZScore       float64 `json:"z_score"`
	PValue       float64 `json:"p_value"`
	Confidence   float64 `json:"confidence"`
	Significant  bool    `json:"significant"`
	Winner       string  `json:"winner"`
}

// TwoProportionZTest compares click-through rates of the original and variant
// arms with a pooled two-proportion z-test. A positive z favors the variant.
// When the standard error is undefined (an empty arm, or a pooled rate of
// exactly 0 or 1) the result is inconclusive rather than an error.
func TwoProportionZTest(impressionsOriginal, clicksOriginal, impressionsVariant, clicksVariant int64) ZTestResult {
	res := ZTestResult{
		Winner: types.WinnerInconclusive,
		PValue: 1,
	}

	if impressionsOriginal > 0 {
		res.RateOriginal = float64(clicksOriginal) / float64(impressionsOriginal)
	}
	if impressionsVariant > 0 {
		res.RateVariant = float64(clicksVariant) / float64(impressionsVariant)
	}

	totalImpressions := impressionsOriginal + impressionsVariant
	if impressionsOriginal <= 0 || impressionsVariant <= 0 || totalImpressions <= 0 {
		return res
	}

	pooled := float64(clicksOriginal+clicksVariant) / float64(totalImpressions)
	res.PooledRate = pooled
	if pooled <= 0 || pooled >= 1 {
		return res
	}

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(impressionsOriginal) + 1/float64(impressionsVariant)))
	if se == 0 {
		return res
	}

	z := (res.RateVariant - res.RateOriginal) / se
	res.ZScore = z
	res.PValue = 2 * (1 - NormalCDF(math.Abs(z)))
	res.Confidence = round2((1 - res.PValue) * 100)
	res.Significant = res.Confidence >= 95

	switch {
	case res.Significant && z > 0:
		res.Winner = types.WinnerVariant
	case res.Significant && z < 0:
		res.Winner = types.WinnerOriginal
	}
	return res
}

// NormalCDF approximates the standard normal CDF with the Abramowitz and
// Stegun 26.2.17 rational polynomial (absolute error below 7.5e-8).
func NormalCDF(x float64) float64 {
	if x < 0 {
		return 1 - NormalCDF(-x)
	}

	const (
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
		p  = 0.2316419
	)

	t := 1 / (1 + p*x)
	pdf := math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	return 1 - pdf*poly
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
