// Package loss implements the token averaged cross entropy over logits,
// computed in row chunks to bound the temporary memory.
package loss

import "math"

import "gonum.org/v1/gonum/floats"
import "gonum.org/v1/gonum/mat"

// IgnoreIndex marks targets excluded from the loss.
const IgnoreIndex = -1

// CrossEntropy returns the mean negative log likelihood of targets under
// the softmax of the rows of logits, processing chunk rows at a time.
// A chunk of zero or less processes all rows at once.
func CrossEntropy(logits *mat.Dense, targets []int, chunk int) float64 {
	var sum float64
	var count int
	forChunks(logits, targets, chunk, func(row []float64, target int) {
		sum += nll(row, target)
		count++
	})
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// CrossEntropyGrad returns the same loss as CrossEntropy and overwrites
// logits with the gradient of scale times that loss.
func CrossEntropyGrad(logits *mat.Dense, targets []int, chunk int, scale float64) float64 {
	var count int
	for _, t := range targets {
		if t != IgnoreIndex {
			count++
		}
	}
	var sum float64
	coef := 0.0
	if count > 0 {
		coef = scale / float64(count)
	}
	rows, _ := logits.Dims()
	forRows(rows, chunk, func(i int) {
		row := logits.RawRowView(i)
		if targets[i] == IgnoreIndex {
			floats.Scale(0, row)
			return
		}
		sum += nll(row, targets[i])
		softmax(row)
		row[targets[i]] -= 1
		floats.Scale(coef, row)
	})
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func forChunks(logits *mat.Dense, targets []int, chunk int, fn func(row []float64, target int)) {
	rows, _ := logits.Dims()
	forRows(rows, chunk, func(i int) {
		if targets[i] != IgnoreIndex {
			fn(logits.RawRowView(i), targets[i])
		}
	})
}

func forRows(rows, chunk int, fn func(i int)) {
	if chunk <= 0 {
		chunk = rows
	}
	for lo := 0; lo < rows; lo += chunk {
		for i := lo; i < min(lo+chunk, rows); i++ {
			fn(i)
		}
	}
}

// nll returns logsumexp(row) - row[target].
func nll(row []float64, target int) float64 {
	return floats.LogSumExp(row) - row[target]
}

func softmax(row []float64) {
	m := floats.Max(row)
	var s float64
	for j, v := range row {
		row[j] = math.Exp(v - m)
		s += row[j]
	}
	floats.Scale(1/s, row)
}
