// Package handlers holds the example handlers served by cmd/httpserver.
package handlers

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"

	"github.com/nhdewitt/httpls/internal/request"
	"github.com/nhdewitt/httpls/internal/response"
	"github.com/nhdewitt/httpls/internal/server"
)

const (
	HelloPage    = "<h1>Hello world!</h1>"
	CounterTail  = "Hello world!\r\n"
	DefaultBytes = "Hello world!\r\n"
)

// Hello serves HelloPage at "/" and declines everything else.
type Hello struct{}

var _ server.Handler = Hello{}

func (Hello) Handle(req *request.Request) (*response.Response, error) {
	if string(req.RequestLine.Path) != "/" {
		return nil, server.Decline(response.StatusNotFound)
	}
	if req.RequestLine.Method == request.MethodPost {
		return nil, server.Decline(response.StatusMethodNotAllowed)
	}
	resp := response.New(response.StatusOK, response.Bytes(HelloPage))
	resp.Headers.Set(response.HeaderContentType, response.DefaultContentType)
	return resp, nil
}

// Counter streams a countdown from a random start in [1, Max], one line
// per Delay, followed by CounterTail.
type Counter struct {
	Max   int
	Delay time.Duration
	// IntN returns a number in [0, n). Defaults to math/rand/v2.IntN, which
	// is safe for concurrent use.
	IntN func(n int) int
}

var _ server.Handler = &Counter{}

func (c *Counter) Handle(*request.Request) (*response.Response, error) {
	limit := c.Max
	if limit <= 0 {
		limit = 10
	}
	intN := c.IntN
	if intN == nil {
		intN = rand.IntN
	}

	body := &countdown{count: intN(limit) + 1, delay: c.Delay}
	resp := response.New(response.StatusOK, body)
	resp.ContentLength = null.IntFrom(body.length())
	return resp, nil
}

// countdown is created for a single request and written once.
type countdown struct {
	count int
	delay time.Duration
}

func (c *countdown) WriteBody(w response.Sink) error {
	for i := c.count; i > 0; i-- {
		if _, err := fmt.Fprintf(w, "%d...\r\n", i); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if c.delay > 0 {
			time.Sleep(c.delay)
		}
	}
	_, err := w.Write([]byte(CounterTail))
	return err
}

// length is the exact number of bytes WriteBody emits.
func (c *countdown) length() int64 {
	var n int64
	for i := 1; i <= c.count; i++ {
		n += int64(len(strconv.Itoa(i)) + len("...\r\n"))
	}
	return n + int64(len(CounterTail))
}

// Static answers every request with the same bytes.
type Static struct {
	Body []byte
}

var _ server.Handler = &Static{}

// StaticFromFile reads the response body from path on fs.
func StaticFromFile(fs afero.Fs, path string) (*Static, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading static body: %w", err)
	}
	return &Static{Body: b}, nil
}

func (s *Static) Handle(*request.Request) (*response.Response, error) {
	return response.New(response.StatusOK, response.Bytes(s.Body)), nil
}
