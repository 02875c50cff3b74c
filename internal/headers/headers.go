package headers

import (
	"bytes"
	"fmt"
)

const crlf = "\r\n"

// Headers is an insertion-ordered header mapping. Keys are compared
// byte-for-byte; setting an existing key overwrites its value in place.
type Headers struct {
	keys   []string
	values map[string]string
}

func NewHeaders() *Headers {
	return &Headers{values: map[string]string{}}
}

// SplitLine returns the first CRLF-terminated line in data without its
// terminator, and the number of bytes it occupies. A nil line with n == 0
// and no error means data does not hold a full line yet. A bare LF, or a
// CR anywhere but directly before the LF, is an error.
func SplitLine(data []byte) (line []byte, n int, err error) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		if cr := bytes.IndexByte(data, '\r'); cr >= 0 && cr != len(data)-1 {
			return nil, 0, fmt.Errorf("malformed line ending: %q", data)
		}
		return nil, 0, nil
	}
	if idx == 0 || data[idx-1] != '\r' {
		return nil, 0, fmt.Errorf("line not terminated by CRLF: %q", data[:idx+1])
	}
	line = data[:idx-1]
	if bytes.IndexByte(line, '\r') >= 0 {
		return nil, 0, fmt.Errorf("stray CR in line: %q", line)
	}
	return line, idx + 1, nil
}

// Parse consumes one header line from data. It returns the number of bytes
// consumed and done=true once the empty line ending the block is seen. A
// return of (0, false, nil) means data does not hold a full line yet.
func (h *Headers) Parse(data []byte) (n int, done bool, err error) {
	line, n, err := SplitLine(data)
	if err != nil || n == 0 {
		return 0, false, err
	}
	if len(line) == 0 {
		return n, true, nil
	}

	colonIdx := bytes.IndexByte(line, ':')
	switch {
	case colonIdx == -1:
		return 0, false, fmt.Errorf("malformed header line (no colon): %q", line)
	case colonIdx == 0:
		return 0, false, fmt.Errorf("malformed header line (empty field-name): %q", line)
	}
	if colonIdx+1 >= len(line) || line[colonIdx+1] != ' ' {
		return 0, false, fmt.Errorf("malformed header line (no space after colon): %q", line)
	}

	h.Set(string(line[:colonIdx]), string(line[colonIdx+2:]))
	return n, false, nil
}

// Set stores value under key. A repeated key keeps its original position
// and takes the new value.
func (h *Headers) Set(key, value string) {
	if h.values == nil {
		h.values = map[string]string{}
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

func (h *Headers) Get(key string) (value string, ok bool) {
	if h == nil {
		return "", false
	}
	value, ok = h.values[key]
	return value, ok
}

func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

func (h *Headers) Del(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Each calls fn for every header in insertion order until fn returns false.
func (h *Headers) Each(fn func(key, value string) bool) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		if !fn(k, h.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy of h.
func (h *Headers) Clone() *Headers {
	c := NewHeaders()
	h.Each(func(k, v string) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// Map returns the headers as a plain map.
func (h *Headers) Map() map[string]string {
	m := make(map[string]string, h.Len())
	h.Each(func(k, v string) bool {
		m[k] = v
		return true
	})
	return m
}

// AppendTo appends the serialized header lines, without the terminating
// blank line, to dst.
func (h *Headers) AppendTo(dst []byte) []byte {
	h.Each(func(k, v string) bool {
		dst = append(dst, k...)
		dst = append(dst, ": "...)
		dst = append(dst, v...)
		dst = append(dst, crlf...)
		return true
	})
	return dst
}
