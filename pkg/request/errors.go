package request

import "errors"

var (
	// ErrInternalServer is the message returned to the client when an
	// unhandled error occurs.
	ErrInternalServer = errors.New("internal server error")
)
