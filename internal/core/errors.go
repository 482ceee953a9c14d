package core

import "errors"

// Sentinel errors for the ingestion/query pipeline. Handlers map these to
// client-facing statuses with errors.Is, so services must wrap rather than
// replace them.
var (
	// ErrEmptyInput means there was no text to chunk, or every chunk fell
	// below the noise floor. Nothing is stored.
	ErrEmptyInput = errors.New("no usable document text")

	// ErrModelUnavailable means the embedding or generation backend could
	// not be reached or returned malformed output.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorageFailure means a persistence call failed or returned no
	// confirmation.
	ErrStorageFailure = errors.New("storage failure")

	// ErrQuotaExceeded is a deterministic free-tier denial, not a server
	// fault.
	ErrQuotaExceeded = errors.New("free tier limit reached")

	// ErrMalformedID means an identifier failed format validation before
	// any store access.
	ErrMalformedID = errors.New("malformed identifier")

	// ErrNotFound means the referenced conversation or message does not
	// exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
)
