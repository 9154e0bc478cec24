package optimizer

import "math"

// PredictSmaller extrapolates the smallest combined size whose store reads
// stay at theta, assuming num_db grows linearly as capacity shrinks. It
// returns zero Sizes when no smaller positive size is predicted. The index
// tier keeps priority: the fast tier only gets what exceeds its current
// index size.
func PredictSmaller(numQuery, numDB, sizeFast, sizeIndex int, theta float64) Sizes {
	combined := sizeFast + sizeIndex
	k := float64(numQuery-numDB) / float64(1-combined)
	x := math.Ceil((theta-float64(numQuery))/k + 1)
	if math.IsNaN(x) || math.IsInf(x, 0) || x >= float64(combined) || x <= 0 {
		return Sizes{}
	}
	n := int(x)
	return Sizes{Fast: max(n-sizeIndex, 0), Index: min(sizeIndex, n)}
}
