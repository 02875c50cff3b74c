package server

import (
	"errors"
	"fmt"

	"github.com/nhdewitt/httpls/internal/request"
	"github.com/nhdewitt/httpls/internal/response"
)

// Handler turns a parsed request into a response. One Handler value is
// shared by every connection task and called concurrently; implementations
// that keep mutable state must synchronize it themselves.
//
// The handler owns req.Body for the duration of the call and may read the
// request body from it. Returning a nil response or an error declines the
// request (see Decline); the server then sends an error page instead.
type Handler interface {
	Handle(req *request.Request) (*response.Response, error)
}

type HandlerFunc func(req *request.Request) (*response.Response, error)

func (f HandlerFunc) Handle(req *request.Request) (*response.Response, error) {
	return f(req)
}

// ErrDeclined is returned by a handler that refuses a request. The server
// answers with 400. Every error made by Decline matches it.
var ErrDeclined = errors.New("request declined")

// DeclineError declines a request with a specific error status.
type DeclineError struct {
	Status response.StatusCode
}

// Decline returns an error that makes the server answer with the error page
// for status.
func Decline(status response.StatusCode) error {
	return &DeclineError{Status: status}
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("request declined with %d", int(e.Status))
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrDeclined
}
