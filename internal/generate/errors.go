package generate

import "errors"

var (
	// ErrTimeout is returned when generation did not complete within
	// the configured deadline, including the single retry.
	ErrTimeout = errors.New("generation timed out")

	// ErrUnavailable is returned when the generation backend cannot be
	// reached or rejects the request.
	ErrUnavailable = errors.New("generation backend unavailable")
)
