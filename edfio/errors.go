package edfio

import "errors"

var (
	// ErrChannelNotFound reports a channel label absent from the file.
	ErrChannelNotFound = errors.New("edfio: channel not found")

	// ErrBadHeader reports a file whose fixed header cannot be parsed.
	ErrBadHeader = errors.New("edfio: malformed header")
)
