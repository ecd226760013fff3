package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Local store lookups
	ErrNotFound         = fmt.Errorf("not found")
	ErrPlaylistNotFound = fmt.Errorf("%w: playlist", ErrNotFound)
	ErrTrackNotFound    = fmt.Errorf("%w: track", ErrNotFound)
	ErrLabelNotFound    = fmt.Errorf("%w: label", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user", ErrNotFound)

	// Reconciliation errors
	ErrInvalidLabel      = fmt.Errorf("invalid label reference")
	ErrInvalidTransition = fmt.Errorf("invalid playlist transition")
	ErrRemoteRequest     = fmt.Errorf("remote request failed")
	ErrStaleSnapshot     = fmt.Errorf("stale snapshot")
	ErrMissingSnapshot   = fmt.Errorf("%w: response carried no snapshot", ErrRemoteRequest)
	ErrLocalCommit       = fmt.Errorf("local commit failed after remote write")

	// Service errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
