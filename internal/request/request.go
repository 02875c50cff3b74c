package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nhdewitt/httpls/internal/headers"
)

type requestState int

const (
	stateRequestLine requestState = iota
	stateHeaders
	stateDone
)

const bufferSize = 1024

type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
	MethodHead Method = "HEAD"
)

func parseMethod(b []byte) (Method, bool) {
	switch string(b) {
	case "GET":
		return MethodGet, true
	case "POST":
		return MethodPost, true
	case "HEAD":
		return MethodHead, true
	}
	return "", false
}

type Request struct {
	RequestLine RequestLine
	Headers     *headers.Headers
	// Body yields every byte the client sent after the header block,
	// starting with any that were already buffered during parsing.
	Body  io.Reader
	state requestState
}

type RequestLine struct {
	Method      Method
	Path        []byte
	HttpVersion string
}

// RequestFromReader reads and parses one request head from reader. The
// returned error is a *ParseError when the bytes violate the grammar, or a
// *ConnError when reading failed (including EOF before the head ended).
func RequestFromReader(reader io.Reader) (*Request, error) {
	buf := make([]byte, bufferSize)
	readToIndex := 0

	r := Request{
		Headers: headers.NewHeaders(),
		state:   stateRequestLine,
	}

	for r.state != stateDone {
		if readToIndex == len(buf) {
			tmpBuf := make([]byte, len(buf)*2)
			copy(tmpBuf, buf[:readToIndex])
			buf = tmpBuf
		}

		n, err := reader.Read(buf[readToIndex:])
		if n > 0 {
			readToIndex += n

			bytesParsed, perr := r.parse(buf[:readToIndex])
			if perr != nil {
				return nil, perr
			}

			copy(buf, buf[bytesParsed:readToIndex])
			readToIndex -= bytesParsed
		}

		if r.state == stateDone {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ConnError{Err: io.ErrUnexpectedEOF}
			}
			return nil, &ConnError{Err: err}
		}
	}

	if readToIndex > 0 {
		leftover := make([]byte, readToIndex)
		copy(leftover, buf[:readToIndex])
		r.Body = io.MultiReader(bytes.NewReader(leftover), reader)
	} else {
		r.Body = reader
	}

	return &r, nil
}

// parse advances the state machine as far as data allows and reports how
// many bytes it consumed.
func (r *Request) parse(data []byte) (int, error) {
	total := 0
	for r.state != stateDone {
		n, err := r.parseSingle(data[total:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (r *Request) parseSingle(data []byte) (int, error) {
	switch r.state {
	case stateRequestLine:
		parsed, rl, err := parseRequestLine(data)
		if err != nil {
			return 0, &ParseError{Reason: err.Error()}
		}
		if parsed == 0 {
			return 0, nil
		}
		r.RequestLine = rl
		r.state = stateHeaders
		return parsed, nil
	case stateHeaders:
		n, done, err := r.Headers.Parse(data)
		if err != nil {
			return 0, &ParseError{Reason: err.Error()}
		}
		if done {
			r.state = stateDone
		}
		return n, nil
	case stateDone:
		return 0, fmt.Errorf("error: trying to read data in a done state")
	default:
		return 0, fmt.Errorf("error: unknown state")
	}
}

func parseRequestLine(data []byte) (int, RequestLine, error) {
	line, consumed, err := headers.SplitLine(data)
	if err != nil || consumed == 0 {
		return 0, RequestLine{}, err
	}

	rl, err := requestLineFromBytes(line)
	if err != nil {
		return 0, RequestLine{}, err
	}

	return consumed, *rl, nil
}

func requestLineFromBytes(line []byte) (*RequestLine, error) {
	parts := bytes.Split(line, []byte{' '})
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid request line: %q", line)
	}

	method, ok := parseMethod(parts[0])
	if !ok {
		return nil, fmt.Errorf("invalid method: %q", parts[0])
	}

	path := parts[1]
	if len(path) == 0 {
		return nil, fmt.Errorf("empty request path: %q", line)
	}

	version := string(parts[2])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return nil, fmt.Errorf("invalid HTTP version: %q", parts[2])
	}

	return &RequestLine{
		Method:      method,
		Path:        bytes.Clone(path),
		HttpVersion: version,
	}, nil
}
