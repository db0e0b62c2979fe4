package domain

import "errors"

var (
	// ErrNetwork marks a non-success response or a transport error.
	ErrNetwork = errors.New("network failure")
	// ErrDecode marks a malformed payload.
	ErrDecode = errors.New("decode failure")

	ErrBusy             = errors.New("refresh already in progress")
	ErrDuplicateLayer   = errors.New("layer already active")
	ErrInvalidViewport  = errors.New("invalid viewport")
	ErrTooManyTiles     = errors.New("viewport covers too many tiles")
	ErrUnknownCategory  = errors.New("unknown overlay category")
	ErrUnknownSport     = errors.New("unknown sport")
	ErrSurfaceNotLoaded = errors.New("surface not loaded")
)
