package services

import "errors"

// Error kinds returned by the checkout and callback flows. Callers match them
// with errors.Is; the wrapped cause carries the detail.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrGateway           = errors.New("gateway error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedCallback = errors.New("malformed callback")
	ErrNotFound          = errors.New("payment intent not found")
	ErrStore             = errors.New("store error")
)
