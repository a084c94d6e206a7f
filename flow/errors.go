package flow

import "errors"

var (
	// ErrShape indicates a tensor whose shape does not match the
	// configured dimensionality of a flow or random variable
	ErrShape = errors.New("shape mismatch")

	// ErrRank indicates a tensor with the wrong number of dimensions
	// for the single-flow or multi-flow path it was given to
	ErrRank = errors.New("rank mismatch")

	// ErrDegenerate indicates a flow parameter for which the
	// reversibility correction is undefined, a w with zero norm
	ErrDegenerate = errors.New("degenerate flow parameter")

	// ErrConfig indicates an invalid configuration
	ErrConfig = errors.New("invalid configuration")
)
