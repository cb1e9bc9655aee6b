package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	ErrEmptyResult       = errors.New("no data found")
	ErrDivision          = errors.New("division by zero")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidNumber     = errors.New("invalid number")
	ErrNetwork           = errors.New("network error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidSelection  = errors.New("invalid selection")
)
