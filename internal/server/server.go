package server

import (
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhdewitt/httpls/internal/accesslog"
	"github.com/nhdewitt/httpls/internal/backend"
	"github.com/nhdewitt/httpls/internal/request"
	"github.com/nhdewitt/httpls/internal/response"
)

const maxAcceptDelay = time.Second

type Options struct {
	// Backend is backend.NameThread or backend.NamePool.
	Backend string
	// Workers is the pool size for the pool backend, 0 for one per CPU.
	Workers int
	// Timings appends per-phase durations to access log lines.
	Timings bool
	Logger  logrus.FieldLogger
}

type Server struct {
	listener    net.Listener
	isListening atomic.Bool
	handler     Handler
	backend     backend.Backend
	access      *accesslog.Logger
	log         logrus.FieldLogger
	done        chan struct{}
}

// ListenAndServe binds host:port and starts serving in the background.
func ListenAndServe(host string, port int, handler Handler, opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	s, err := Serve(listener, handler, opts)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return s, nil
}

// Serve starts the accept loop on listener in the background. The loop
// accepts one connection at a time and hands each to the backend.
func Serve(listener net.Listener, handler Handler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Backend == "" {
		opts.Backend = backend.NamePool
	}

	s := &Server{
		listener: listener,
		handler:  handler,
		access:   accesslog.New(logger, opts.Timings),
		log:      logger,
		done:     make(chan struct{}),
	}
	b, err := backend.New(opts.Backend, s.serveConn, opts.Workers, logger)
	if err != nil {
		return nil, err
	}
	s.backend = b

	s.isListening.Store(true)
	go s.listen()

	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Backend() backend.Backend {
	return s.backend
}

// Close stops accepting connections. Tasks already running are left to
// finish on their own; use Wait to block until they have.
func (s *Server) Close() error {
	if !s.isListening.CompareAndSwap(true, false) {
		return nil
	}

	err := s.listener.Close()
	<-s.done
	if berr := s.backend.Close(); err == nil {
		err = berr
	}
	return err
}

// Wait blocks until every connection task has finished.
func (s *Server) Wait() {
	s.backend.Wait()
}

func (s *Server) listen() {
	defer close(s.done)

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isListening.Load() {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.log.WithError(err).Warnf("error accepting connection; retrying in %v", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.backend.Submit(conn)
	}
}

// serveConn runs parse, handle, send and log for one connection.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	entry := accesslog.Entry{Peer: peerName(conn)}
	defer func() { s.access.Log(entry) }()

	start := time.Now()
	req, err := request.RequestFromReader(conn)
	entry.Timings.Parse = time.Since(start)

	var resp *response.Response
	switch {
	case err == nil:
		entry.Method = req.RequestLine.Method
		entry.Path = req.RequestLine.Path
		start = time.Now()
		resp = s.handle(req)
		entry.Timings.Handle = time.Since(start)
	case errors.Is(err, request.ErrMalformed):
		s.log.WithError(err).WithField("peer", entry.Peer).Debug("malformed request")
		resp = response.ErrorPage(response.StatusBadRequest)
	default:
		var cerr *request.ConnError
		if errors.As(err, &cerr) {
			err = cerr.Err
		}
		entry.ConnErr = err
		return
	}

	entry.Status = resp.Status
	start = time.Now()
	err = response.Send(conn, resp)
	entry.Timings.Send = time.Since(start)
	entry.Sent = err == nil
	if err != nil {
		s.log.WithError(err).WithField("peer", entry.Peer).Debug("response aborted")
	}
}

// handle calls the handler and maps every way it can fail to an error
// page.
func (s *Server) handle(req *request.Request) (resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("handler panicked")
			resp = response.ErrorPage(response.StatusServerError)
		}
	}()

	resp, err := s.handler.Handle(req)
	if err != nil {
		var decline *DeclineError
		switch {
		case errors.As(err, &decline):
			return response.ErrorPage(declineStatus(decline.Status))
		case errors.Is(err, ErrDeclined):
			return response.ErrorPage(response.StatusBadRequest)
		default:
			s.log.WithError(err).Error("handler failed")
			return response.ErrorPage(response.StatusServerError)
		}
	}
	if resp == nil {
		return response.ErrorPage(response.StatusBadRequest)
	}
	if !resp.Status.Valid() {
		s.log.WithField("status", int(resp.Status)).Error("handler returned an unsupported status")
		return response.ErrorPage(response.StatusServerError)
	}
	return resp
}

func declineStatus(status response.StatusCode) response.StatusCode {
	if status < response.StatusBadRequest || !status.Valid() {
		return response.StatusBadRequest
	}
	return status
}

func peerName(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "???"
}

func (s *Server) String() string {
	return fmt.Sprintf("%s (%s backend)", s.listener.Addr(), s.backend.Name())
}
