package markov

import "errors"

// Sentinel errors returned by the chain and die APIs. They are always
// wrapped with call-site detail, so match them with errors.Is.
var (
	// ErrInvalidConfiguration is returned by New when a wildcard dimension
	// is out of range or duplicated, or when the order is negative.
	ErrInvalidConfiguration = errors.New("markov: invalid configuration")

	// ErrMalformedContext is returned by Train and the query methods when
	// a context window has the wrong length, or when a non-wildcard slot
	// is unknown.
	ErrMalformedContext = errors.New("markov: malformed context")

	// ErrInvalidWeight is returned by Train and WeightedDie.Add when the
	// supplied weight is zero or negative.
	ErrInvalidWeight = errors.New("markov: invalid weight")
)
