package nflow

import "gorgonia.org/tensor"

// SameShape reports whether a and b have the same number of axes and
// the same size along each of them. Unlike tensor.Shape.Eq, a (1, n)
// or (n, 1) shape is never equal to (n).
func SameShape(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
