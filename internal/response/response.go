package response

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/guregu/null.v3"

	"github.com/nhdewitt/httpls/internal/headers"
)

const (
	crlf = "\r\n"

	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"

	DefaultContentType = "text/html; charset=utf-8"
)

// Sink is where a BodyWriter emits the response body. Flush pushes any
// buffered bytes to the client.
type Sink interface {
	io.Writer
	Flush() error
}

// BodyWriter emits a response body. The server calls WriteBody at most
// once, after the status line and headers have been flushed.
type BodyWriter interface {
	WriteBody(w Sink) error
}

// Sizer is implemented by bodies whose exact length is known before they
// are written.
type Sizer interface {
	Size() (int64, bool)
}

// Typer is implemented by bodies that know their media type.
type Typer interface {
	ContentType() string
}

// BodyFunc adapts a function to BodyWriter.
type BodyFunc func(w Sink) error

func (f BodyFunc) WriteBody(w Sink) error {
	return f(w)
}

// Bytes is a body of known content.
type Bytes []byte

func (b Bytes) WriteBody(w Sink) error {
	_, err := w.Write(b)
	return err
}

func (b Bytes) Size() (int64, bool) {
	return int64(len(b)), true
}

// Response describes what to send back for one request.
type Response struct {
	Status  StatusCode
	Headers *headers.Headers
	// ContentLength, when valid, is announced as Content-Length unless the
	// headers already carry one. The body must emit exactly that many bytes.
	ContentLength null.Int
	Body          BodyWriter
}

func New(status StatusCode, body BodyWriter) *Response {
	return &Response{
		Status:  status,
		Headers: headers.NewHeaders(),
		Body:    body,
	}
}

// ErrorPage builds the response the server synthesizes for a failed
// request: a short HTML heading naming the status.
func ErrorPage(status StatusCode) *Response {
	body := fmt.Sprintf("<h1>%d %s</h1>", int(status), errorPhrase(status))
	r := New(status, Bytes(body))
	r.Headers.Set(HeaderContentType, DefaultContentType)
	r.ContentLength = null.IntFrom(int64(len(body)))
	return r
}

func errorPhrase(status StatusCode) string {
	if p, ok := errorPhrases[status]; ok {
		return p
	}
	return status.Reason()
}

// finalHeaders returns the headers to put on the wire: the descriptor's own
// headers in order, followed by a default Content-Type and a Content-Length
// when one is known and none was set.
func (r *Response) finalHeaders() *headers.Headers {
	h := headers.NewHeaders()
	if r.Headers != nil {
		h = r.Headers.Clone()
	}

	if !h.Has(HeaderContentType) {
		contentType := DefaultContentType
		if t, ok := r.Body.(Typer); ok && t.ContentType() != "" {
			contentType = t.ContentType()
		}
		h.Set(HeaderContentType, contentType)
	}

	if !h.Has(HeaderContentLength) {
		if n, ok := r.contentLength(); ok {
			h.Set(HeaderContentLength, strconv.FormatInt(n, 10))
		}
	}
	return h
}

func (r *Response) contentLength() (int64, bool) {
	if r.ContentLength.Valid {
		return r.ContentLength.Int64, true
	}
	if r.Body == nil {
		return 0, true
	}
	if s, ok := r.Body.(Sizer); ok {
		return s.Size()
	}
	return 0, false
}
