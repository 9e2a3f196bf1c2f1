package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound        = errors.New("resource not found") // General not found
	ErrDraftNotFound   = errors.New("draft not found")
	ErrVersionNotFound = errors.New("draft version not found")

	// Draft Validation Errors
	ErrEmptySnapshot = errors.New("snapshot is empty and cannot be saved")

	// Local Store Errors
	ErrStoreCorrupted = errors.New("persisted draft store is corrupted")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")

	// Add other specific errors as needed
)
