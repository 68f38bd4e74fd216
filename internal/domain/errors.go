package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession indicates a send was attempted without an active session
	ErrNoSession = errors.New("no active session")
	// ErrAborted indicates a stream was stopped by user cancellation
	ErrAborted = errors.New("stream aborted")
	// ErrSendInFlight indicates a send was attempted while another is live
	ErrSendInFlight = errors.New("another send is in flight")
	// ErrAllUploadsFailed indicates no pending file could be resolved
	ErrAllUploadsFailed = errors.New("all file uploads failed")
)
