package repository

import "errors"

var (
	// ErrInvalidPageURL indicates a page location no source can serve
	ErrInvalidPageURL = errors.New("invalid page URL")

	// ErrSourceNotConfigured indicates the page names a source that was not set up
	ErrSourceNotConfigured = errors.New("page source not configured")

	// ErrAnswerKeyNotFound indicates no key exists for an assignment version
	ErrAnswerKeyNotFound = errors.New("answer key not found")

	// ErrInvalidAnswerKey indicates a key file that failed validation
	ErrInvalidAnswerKey = errors.New("invalid answer key")

	// ErrInvalidRoster indicates a roster file that failed validation
	ErrInvalidRoster = errors.New("invalid roster")

	// ErrStoreUnavailable indicates the grade store could not be read or written
	ErrStoreUnavailable = errors.New("grade store unavailable")
)
