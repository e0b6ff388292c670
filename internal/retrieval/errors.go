package retrieval

import "errors"

var (
	// ErrIndexUnavailable is returned when the vector index backend
	// cannot be reached. Distinct from "no match": a failed lookup and
	// an empty result must produce different user-facing behavior.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrCollectionNotFound is returned when the named collection does
	// not exist on the backend.
	ErrCollectionNotFound = errors.New("collection not found")
)
