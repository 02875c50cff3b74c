package request

import "errors"

// ErrMalformed matches every *ParseError through errors.Is.
var ErrMalformed = errors.New("malformed request")

// ParseError reports a request head that violates the wire grammar. The
// connection is still usable for sending a 400 response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "malformed request: " + e.Reason
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

// ConnError reports a transport failure while reading the request head.
// No response should be attempted.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string {
	return "connection error: " + e.Err.Error()
}

func (e *ConnError) Unwrap() error {
	return e.Err
}
