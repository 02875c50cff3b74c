package response

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/nhdewitt/httpls/internal/headers"
)

type writerState int

const (
	StateWritingStatusLine writerState = iota
	StateWritingHeaders
	StateWritingBody
	StateDone
)

const sinkSize = 1500

var ErrOutOfOrder = errors.New("writer state out-of-order")

// Writer serializes one response onto a connection. Its methods must be
// called in order: WriteStatusLine, WriteHeaders, WriteBody.
type Writer struct {
	conn   io.Writer
	writer *bufio.Writer
	state  writerState
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		conn:   w,
		writer: bufio.NewWriterSize(w, sinkSize),
		state:  StateWritingStatusLine,
	}
}

func (w *Writer) WriteStatusLine(statusCode StatusCode) error {
	if w.state != StateWritingStatusLine {
		return ErrOutOfOrder
	}
	if !statusCode.Valid() {
		return fmt.Errorf("unsupported status code %d", int(statusCode))
	}

	w.state = StateWritingHeaders
	if _, err := w.writer.WriteString(statusCode.statusLine()); err != nil {
		w.state = StateDone
		return err
	}
	return nil
}

// WriteHeaders writes every header line and the blank line ending the
// head, then flushes so the client sees the head before any body bytes.
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != StateWritingHeaders {
		return ErrOutOfOrder
	}

	w.state = StateWritingBody
	buf := h.AppendTo(make([]byte, 0, 256))
	buf = append(buf, crlf...)
	if _, err := w.writer.Write(buf); err != nil {
		w.state = StateDone
		return fmt.Errorf("error writing headers: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		w.state = StateDone
		return fmt.Errorf("error writing headers: %w", err)
	}
	return nil
}

// WriteBody hands a freshly buffered sink over the connection to body and
// flushes whatever it leaves behind.
func (w *Writer) WriteBody(body BodyWriter) error {
	if w.state != StateWritingBody {
		return ErrOutOfOrder
	}

	w.state = StateDone
	if body == nil {
		return nil
	}
	sink := bufio.NewWriterSize(w.conn, sinkSize)
	if err := body.WriteBody(sink); err != nil {
		return fmt.Errorf("error writing body: %w", err)
	}
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("error writing body: %w", err)
	}
	return nil
}

// Send writes resp in full. Once the status line is out the response is
// committed: any error aborts it and nothing else may be written.
func Send(w io.Writer, resp *Response) error {
	rw := NewWriter(w)
	if err := rw.WriteStatusLine(resp.Status); err != nil {
		return err
	}
	if err := rw.WriteHeaders(resp.finalHeaders()); err != nil {
		return err
	}
	return rw.WriteBody(resp.Body)
}
