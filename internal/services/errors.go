package services

import "errors"

// Sentinel errors the transport layer maps onto API error responses.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRunInProgress   = errors.New("a run is already in progress for this session")
	ErrNoDocument      = errors.New("no document uploaded for this session")
	ErrReportNotReady  = errors.New("report not ready")
	ErrNoArtifacts     = errors.New("no output artifacts to download")
)
