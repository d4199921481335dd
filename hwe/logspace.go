package hwe

import "math"

// LogZero stands in for log(0) so that no -Inf ever enters or leaves a
// log-space computation.
const LogZero = -1e9

// Log is math.Log with the zero case mapped to the LogZero sentinel.
func Log(x float64) float64 {
	if x <= 0 {
		return LogZero
	}

	return math.Log(x)
}

// LogAddExp returns log(exp(a) + exp(b)) without overflow.
func LogAddExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if b <= LogZero {
		return a
	}

	return a + math.Log1p(math.Exp(b-a))
}

// LogSumExp returns log(Σ exp(x)) over the slice without overflow. An empty
// slice returns LogZero.
func LogSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return LogZero
	}

	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	if max <= LogZero {
		return LogZero
	}

	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}

	return max + math.Log(sum)
}

// Softmax converts log-scores into a probability simplex, subtracting the max
// first for numeric stability. The result always sums to 1 and never contains
// NaN or Inf.
func Softmax(logs []float64) []float64 {
	out := make([]float64, len(logs))
	if len(logs) == 0 {
		return out
	}

	max := logs[0]
	for _, l := range logs[1:] {
		if l > max {
			max = l
		}
	}

	var sum float64
	for i, l := range logs {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}

	if sum <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}

	for i := range out {
		out[i] /= sum
	}

	return out
}
