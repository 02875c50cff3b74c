package response

import "strconv"

type StatusCode int

const (
	StatusOK               StatusCode = 200
	StatusMoved            StatusCode = 301
	StatusMovedPermanently StatusCode = 302
	StatusBadRequest       StatusCode = 400
	StatusMethodNotAllowed StatusCode = 401
	StatusNotAuthorized    StatusCode = 403
	StatusNotFound         StatusCode = 404
	StatusServerError      StatusCode = 500
)

// Reason phrases as sent on the wire. 301, 302, 401 and 403 do not match
// RFC 9110.
var reasonPhrases = map[StatusCode]string{
	StatusOK:               "OK",
	StatusMoved:            "Moved",
	StatusMovedPermanently: "Moved Permanently",
	StatusBadRequest:       "Bad Request",
	StatusMethodNotAllowed: "Method Not Allowed",
	StatusNotAuthorized:    "Not Authorized",
	StatusNotFound:         "Not Found",
	StatusServerError:      "Server Error",
}

var errorPhrases = map[StatusCode]string{
	StatusBadRequest:       "Bad Request",
	StatusMethodNotAllowed: "Method Not Allowed",
	StatusNotAuthorized:    "Access Denied",
	StatusNotFound:         "Not Found",
	StatusServerError:      "Server Error",
}

func (s StatusCode) Valid() bool {
	_, ok := reasonPhrases[s]
	return ok
}

func (s StatusCode) Reason() string {
	return reasonPhrases[s]
}

func (s StatusCode) String() string {
	return strconv.Itoa(int(s))
}

// statusLine returns the full "HTTP/1.0 <code> <reason>\r\n" line.
func (s StatusCode) statusLine() string {
	return "HTTP/1.0 " + s.String() + " " + s.Reason() + crlf
}
