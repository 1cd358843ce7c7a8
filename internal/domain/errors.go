package domain

import "errors"

var (
	// ErrInvalidBatch rejects a malformed batch before any processing starts.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrRetrievalUnavailable means the hierarchy index could not be queried.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrAdjudicationFailed means the external adjudication call failed or
	// timed out; there is no partial-adjudication fallback.
	ErrAdjudicationFailed = errors.New("adjudication failed")
)
