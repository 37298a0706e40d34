package domain

import "errors"

var (
	// ErrChallengeNotFound is returned when the challenge record does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrSubmissionNotFound is returned when a submission ID is unknown.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrInvalidRating indicates a rating outside 1..10.
	ErrInvalidRating = errors.New("rating must be between 1 and 10")
	// ErrNegativeDelta is returned when an XP delta below zero reaches the ledger.
	ErrNegativeDelta = errors.New("xp delta must not be negative")
	// ErrUpstreamRead wraps failures loading submissions, skills or progressions.
	ErrUpstreamRead = errors.New("load progression state")
	// ErrPersist wraps failures writing the award batch.
	ErrPersist = errors.New("persist awards")
	// ErrAlreadyAwarded indicates XP events already exist for a submission.
	ErrAlreadyAwarded = errors.New("submission already awarded")
	// ErrClosingInProgress is returned when another run holds the challenge lock.
	ErrClosingInProgress = errors.New("challenge closing already in progress")
)
