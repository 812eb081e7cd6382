package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrNotResumable       = errors.New("job is not resumable")
	ErrNotReviewable      = errors.New("job is not awaiting review")
	ErrJobTerminal        = errors.New("job already terminal")
	ErrProviderFailure    = errors.New("provider failure")
	ErrAuditUnavailable   = errors.New("audit unavailable")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
