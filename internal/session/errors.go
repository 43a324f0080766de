package session

import "errors"

var (
	// ErrStorageUnavailable marks a tool whose storage root does not exist
	// or cannot be opened. The tool is skipped; the run fails only when
	// every requested tool is unavailable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoMatches is returned when the query occurs nowhere.
	ErrNoMatches = errors.New("no matches found")

	// ErrInvalidSelection is returned for non-numeric or out-of-range
	// selection input. It ends the run with no export.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrNotFound marks a session id that no adapter can resolve.
	ErrNotFound = errors.New("session not found")

	// ErrStop is returned by a UnitFunc to end iteration early. Adapters
	// swallow it and return nil.
	ErrStop = errors.New("stop iteration")
)
