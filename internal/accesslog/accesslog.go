// Package accesslog records one outcome line per served connection.
package accesslog

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/nhdewitt/httpls/internal/request"
	"github.com/nhdewitt/httpls/internal/response"
)

// Entry is the outcome of one connection task.
type Entry struct {
	Peer string
	// Method and Path are empty when no request head was parsed.
	Method request.Method
	Path   []byte
	Status response.StatusCode
	// Sent is false when transmitting the response failed.
	Sent bool
	// ConnErr is set when reading the request failed and no response was
	// attempted.
	ConnErr error
	Timings Timings
}

// Timings holds how long each pipeline phase took.
type Timings struct {
	Parse, Handle, Send time.Duration
}

// Logger writes access log lines through logrus.
type Logger struct {
	log         logrus.FieldLogger
	withTimings bool
}

func New(log logrus.FieldLogger, withTimings bool) *Logger {
	return &Logger{log: log, withTimings: withTimings}
}

func (l *Logger) Log(e Entry) {
	fields := logrus.Fields{"peer": e.Peer}
	if e.ConnErr != nil {
		l.log.WithFields(fields).WithError(e.ConnErr).Info(e.Line(false))
		return
	}

	fields["status"] = int(e.Status)
	fields["sent"] = e.Sent
	if e.Method != "" {
		fields["method"] = string(e.Method)
		fields["path"] = printablePath(e.Path)
	}
	if l.withTimings {
		fields["parse_seconds"] = e.Timings.Parse.Seconds()
		fields["handle_seconds"] = e.Timings.Handle.Seconds()
		fields["send_seconds"] = e.Timings.Send.Seconds()
	}
	l.log.WithFields(fields).Info(e.Line(l.withTimings))
}

// Line formats the entry as
//
//	[<peer>] <method> "<path>" => <status>[ (NOT SENT)][ (parse: ..s, handle: ..s, send: ..s)]
func (e Entry) Line(withTimings bool) string {
	if e.ConnErr != nil {
		return fmt.Sprintf("[%s] connection error: %v", e.Peer, e.ConnErr)
	}

	var sb strings.Builder
	if e.Method == "" {
		fmt.Fprintf(&sb, "[%s] ??? => %d", e.Peer, int(e.Status))
	} else {
		fmt.Fprintf(&sb, "[%s] %s \"%s\" => %d", e.Peer, e.Method, printablePath(e.Path), int(e.Status))
	}
	if !e.Sent {
		sb.WriteString(" (NOT SENT)")
	}
	if withTimings {
		fmt.Fprintf(&sb, " (parse: %.4fs, handle: %.4fs, send: %.4fs)",
			e.Timings.Parse.Seconds(), e.Timings.Handle.Seconds(), e.Timings.Send.Seconds())
	}
	return sb.String()
}

// printablePath replaces ill-formed UTF-8 in the raw request path with
// U+FFFD.
func printablePath(p []byte) string {
	s, _, err := transform.Bytes(runes.ReplaceIllFormed(), p)
	if err != nil {
		return fmt.Sprintf("%q", p)
	}
	return string(s)
}
