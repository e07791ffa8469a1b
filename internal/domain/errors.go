package domain

import "errors"

var (
	// ErrValidation marks missing or malformed input such as an empty username or password.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateUsername is returned when the username is already registered.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)
