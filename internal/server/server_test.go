package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/nhdewitt/httpls/internal/backend"
	"github.com/nhdewitt/httpls/internal/request"
	"github.com/nhdewitt/httpls/internal/response"
)

const helloPage = "<h1>Hello world!</h1>"

const helloResponse = "HTTP/1.0 200 OK\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Length: 21\r\n" +
	"\r\n" + helloPage

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var backends = []string{backend.NameThread, backend.NamePool}

func helloHandler(calls *atomic.Int64) Handler {
	return HandlerFunc(func(req *request.Request) (*response.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		if string(req.RequestLine.Path) != "/" {
			return nil, Decline(response.StatusNotFound)
		}
		resp := response.New(response.StatusOK, response.Bytes(helloPage))
		resp.Headers.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	})
}

func startServer(t *testing.T, name string, h Handler) (*Server, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := Serve(ln, h, Options{Backend: name, Workers: 2, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		s.Wait()
	})
	return s, hook
}

// roundTrip sends raw, half-closes the write side and returns everything
// the server sent back.
func roundTrip(t *testing.T, addr net.Addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(got)
}

// accessLines waits for n access log entries and returns their messages.
func accessLines(t *testing.T, s *Server, hook *test.Hook, n int) []string {
	t.Helper()
	s.Wait()
	var lines []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel {
			lines = append(lines, e.Message)
		}
	}
	require.Len(t, lines, n)
	return lines
}

func TestServeHello(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int64
			s, hook := startServer(t, name, helloHandler(&calls))

			got := roundTrip(t, s.Addr(), "GET / HTTP/1.0\r\n\r\n")
			assert.Equal(t, helloResponse, got)
			assert.Equal(t, int64(1), calls.Load())

			lines := accessLines(t, s, hook, 1)
			assert.Regexp(t, `^\[127\.0\.0\.1:\d+\] GET "/" => 200$`, lines[0])
		})
	}
}

func TestServeDeclineNotFound(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			s, hook := startServer(t, name, helloHandler(nil))

			got := roundTrip(t, s.Addr(), "GET /missing HTTP/1.0\r\nHost: x\r\n\r\n")
			assert.True(t, strings.HasPrefix(got, "HTTP/1.0 404 Not Found\r\n"), got)
			assert.True(t, strings.HasSuffix(got, "\r\n\r\n<h1>404 Not Found</h1>"), got)

			lines := accessLines(t, s, hook, 1)
			assert.Contains(t, lines[0], `GET "/missing" => 404`)
		})
	}
}

func TestServeMalformed(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int64
			s, hook := startServer(t, name, helloHandler(&calls))

			for _, raw := range []string{
				"GET\r\n",
				"PUT / HTTP/1.0\r\n\r\n",
				"GET / HTTP/1.0\r\nKey:Value\r\n\r\n",
				"GET / HTTP/1.0\n\n",
			} {
				got := roundTrip(t, s.Addr(), raw)
				assert.Equal(t,
					"HTTP/1.0 400 Bad Request\r\n"+
						"Content-Type: text/html; charset=utf-8\r\n"+
						"Content-Length: 24\r\n\r\n"+
						"<h1>400 Bad Request</h1>",
					got, "request %q", raw)
			}
			assert.Zero(t, calls.Load())

			for _, line := range accessLines(t, s, hook, 4) {
				assert.Regexp(t, `^\[127\.0\.0\.1:\d+\] \?\?\? => 400$`, line)
			}
		})
	}
}

func TestServeConnectionError(t *testing.T) {
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int64
			s, hook := startServer(t, name, helloHandler(&calls))

			// Client goes away mid-header: nothing is sent back.
			got := roundTrip(t, s.Addr(), "GET / HTTP/1.0\r\nHost: exa")
			assert.Empty(t, got)
			assert.Zero(t, calls.Load())

			lines := accessLines(t, s, hook, 1)
			assert.Regexp(t, `^\[127\.0\.0\.1:\d+\] connection error: unexpected EOF$`, lines[0])
		})
	}
}

func TestServeHandlerFailures(t *testing.T) {
	cases := map[string]struct {
		handler HandlerFunc
		status  int
		body    string
	}{
		"error": {
			handler: func(*request.Request) (*response.Response, error) { return nil, errors.New("db down") },
			status:  500, body: "<h1>500 Server Error</h1>",
		},
		"panic": {
			handler: func(*request.Request) (*response.Response, error) { panic("oops") },
			status:  500, body: "<h1>500 Server Error</h1>",
		},
		"declined": {
			handler: func(*request.Request) (*response.Response, error) { return nil, ErrDeclined },
			status:  400, body: "<h1>400 Bad Request</h1>",
		},
		"nil response": {
			handler: func(*request.Request) (*response.Response, error) { return nil, nil },
			status:  400, body: "<h1>400 Bad Request</h1>",
		},
		"declined forbidden": {
			handler: func(*request.Request) (*response.Response, error) {
				return nil, fmt.Errorf("auth: %w", Decline(response.StatusNotAuthorized))
			},
			status: 403, body: "<h1>403 Access Denied</h1>",
		},
		"declined with success status": {
			handler: func(*request.Request) (*response.Response, error) { return nil, Decline(response.StatusOK) },
			status:  400, body: "<h1>400 Bad Request</h1>",
		},
		"unsupported status": {
			handler: func(*request.Request) (*response.Response, error) {
				return response.New(response.StatusCode(418), nil), nil
			},
			status: 500, body: "<h1>500 Server Error</h1>",
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			s, _ := startServer(t, backend.NameThread, c.handler)
			got := roundTrip(t, s.Addr(), "GET / HTTP/1.0\r\n\r\n")
			assert.True(t, strings.HasPrefix(got, fmt.Sprintf("HTTP/1.0 %d ", c.status)), got)
			assert.True(t, strings.HasSuffix(got, c.body), got)
		})
	}
}

func TestServeRequestBody(t *testing.T) {
	echo := HandlerFunc(func(req *request.Request) (*response.Response, error) {
		body := make([]byte, 5)
		if _, err := io.ReadFull(req.Body, body); err != nil {
			return nil, err
		}
		resp := response.New(response.StatusOK, response.Bytes(bytes.ToUpper(body)))
		resp.Headers.Set("Content-Type", "text/plain")
		return resp, nil
	})
	s, _ := startServer(t, backend.NamePool, echo)

	got := roundTrip(t, s.Addr(), "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nHELLO", got)
}

func TestServeStreamingBody(t *testing.T) {
	stream := HandlerFunc(func(*request.Request) (*response.Response, error) {
		return response.New(response.StatusOK, response.BodyFunc(func(w response.Sink) error {
			for i := 3; i > 0; i-- {
				if _, err := fmt.Fprintf(w, "%d...\r\n", i); err != nil {
					return err
				}
				if err := w.Flush(); err != nil {
					return err
				}
				time.Sleep(10 * time.Millisecond)
			}
			_, err := io.WriteString(w, "Hello world!\r\n")
			return err
		})), nil
	})
	s, _ := startServer(t, backend.NameThread, stream)

	got := roundTrip(t, s.Addr(), "GET / HTTP/1.0\r\n\r\n")
	assert.Equal(t,
		"HTTP/1.0 200 OK\r\nContent-Type: text/html; charset=utf-8\r\n\r\n"+
			"3...\r\n2...\r\n1...\r\nHello world!\r\n",
		got)
}

func TestServeNotSent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := HandlerFunc(func(*request.Request) (*response.Response, error) {
		return response.New(response.StatusOK, response.BodyFunc(func(w response.Sink) error {
			close(started)
			<-release
			chunk := bytes.Repeat([]byte("x"), 64<<10)
			for i := 0; i < 256; i++ {
				if _, err := w.Write(chunk); err != nil {
					return err
				}
			}
			return nil
		})), nil
	})
	s, hook := startServer(t, backend.NameThread, slow)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = io.WriteString(conn, "GET /big HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	<-started
	require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
	require.NoError(t, conn.Close())
	close(release)

	lines := accessLines(t, s, hook, 1)
	assert.Regexp(t, `GET "/big" => 200 \(NOT SENT\)$`, lines[0])
}

func TestServeTimings(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := Serve(ln, helloHandler(nil), Options{Backend: backend.NamePool, Timings: true, Logger: logger})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
		s.Wait()
	}()

	roundTrip(t, s.Addr(), "HEAD / HTTP/1.0\r\n\r\n")
	lines := accessLines(t, s, hook, 1)
	assert.Regexp(t, `HEAD "/" => 200 \(parse: \d+\.\d{4}s, handle: \d+\.\d{4}s, send: \d+\.\d{4}s\)$`, lines[0])
}

func TestServeConcurrent(t *testing.T) {
	const n = 64
	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int64
			s, hook := startServer(t, name, helloHandler(&calls))

			var g errgroup.Group
			for range n {
				g.Go(func() error {
					conn, err := net.Dial("tcp", s.Addr().String())
					if err != nil {
						return err
					}
					defer conn.Close()
					if _, err := io.WriteString(conn, "GET / HTTP/1.0\r\n\r\n"); err != nil {
						return err
					}
					got, err := io.ReadAll(conn)
					if err != nil {
						return err
					}
					if string(got) != helloResponse {
						return fmt.Errorf("unexpected response %q", got)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.Equal(t, int64(n), calls.Load())
			accessLines(t, s, hook, n)
		})
	}
}

func TestServeValidation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = Serve(ln, nil, Options{})
	require.Error(t, err)

	logger, _ := test.NewNullLogger()
	_, err = Serve(ln, helloHandler(nil), Options{Backend: "fibers", Logger: logger})
	require.Error(t, err)
}

func TestListenAndServe(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := ListenAndServe("127.0.0.1", 0, helloHandler(nil), Options{Backend: backend.NameThread, Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, s.String(), "thread backend")

	got := roundTrip(t, s.Addr(), "GET / HTTP/1.0\r\n\r\n")
	assert.Equal(t, helloResponse, got)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Wait()

	_, err = net.Dial("tcp", s.Addr().String())
	assert.Error(t, err)
}
