// Copyright 2026 Varq ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package matrix provides the public constructors for the 2-D values that
// flow through varq computation graphs.
//
// Graph values are gonum *mat.Dense matrices. Scalars are 1x1 matrices and
// vectors are Nx1 columns, so everything the engine touches shares one
// representation.
//
// Example:
//
//	w := matrix.Randn(4, 4, nil)
//	b := matrix.Zeros(4, 1)
//	x, err := matrix.FromSlice(4, 1, []float64{1, 2, 3, 4})
package matrix

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	internalmatrix "github.com/varq-ml/varq/internal/matrix"
)

// ShapeError reports an operand dimension combination an operation cannot
// accept.
type ShapeError = internalmatrix.ShapeError

// Scalar creates a 1x1 matrix holding v.
func Scalar(v float64) *mat.Dense {
	return internalmatrix.Scalar(v)
}

// Vector creates an Nx1 column vector from data.
func Vector(data []float64) *mat.Dense {
	return internalmatrix.Vector(data)
}

// FromSlice creates a rows x cols matrix from row-major data.
func FromSlice(rows, cols int, data []float64) (*mat.Dense, error) {
	return internalmatrix.FromSlice(rows, cols, data)
}

// Zeros creates a rows x cols matrix filled with zeros.
func Zeros(rows, cols int) *mat.Dense {
	return internalmatrix.Zeros(rows, cols)
}

// Full creates a rows x cols matrix with every element set to v.
func Full(rows, cols int, v float64) *mat.Dense {
	return internalmatrix.Full(rows, cols, v)
}

// Randn creates a rows x cols matrix with standard normal entries drawn
// from rng. A nil rng falls back to the global math/rand source.
func Randn(rows, cols int, rng *rand.Rand) *mat.Dense {
	return internalmatrix.Randn(rows, cols, rng)
}

// Clone returns a deep copy of m.
func Clone(m *mat.Dense) *mat.Dense {
	return internalmatrix.Clone(m)
}

// Sum returns the total of all elements of m.
func Sum(m *mat.Dense) float64 {
	return internalmatrix.Sum(m)
}
