// Command rawsender reads request head lines from a file or stdin, sends
// them over one TCP connection and copies the response to stdout. Lines are
// sent exactly as given, so malformed heads can be tried against a server.
package main

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:8080", "server `address`")
	file := pflag.StringP("file", "f", "", "read head lines from `path` instead of stdin")
	bareLF := pflag.Bool("lf", false, "end lines with a bare LF instead of CRLF")
	timeout := pflag.Duration("timeout", 10*time.Second, "give up on the response after this long")
	pflag.Parse()

	log := logrus.New()

	var in io.ReadCloser = os.Stdin
	if *file != "" {
		f, err := afero.NewOsFs().Open(*file)
		if err != nil {
			log.WithError(err).Fatal("error opening input")
		}
		in = f
	}

	eol := "\r\n"
	if *bareLF {
		eol = "\n"
	}
	head := buildHead(getLinesChannel(in), eol)

	n, err := send(*addr, head, *timeout, os.Stdout)
	if err != nil {
		log.WithError(err).WithField("received", n).Fatal("exchange failed")
	}
	log.WithFields(logrus.Fields{"sent": len(head), "received": n}).Debug("done")
}

// getLinesChannel streams the lines of f without their line endings and
// closes f once it is drained.
func getLinesChannel(f io.ReadCloser) <-chan string {
	out := make(chan string)

	currentLine := ""
	go func() {
		defer close(out)
		defer f.Close()

		buf := make([]byte, 8)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				parts := strings.Split(string(buf[:n]), "\n")
				for i := 0; i < len(parts)-1; i++ {
					out <- strings.TrimSuffix(currentLine+parts[i], "\r")
					currentLine = ""
				}
				currentLine += parts[len(parts)-1]
			}
			if err != nil {
				if errors.Is(err, io.EOF) && currentLine != "" {
					out <- strings.TrimSuffix(currentLine, "\r")
				}
				return
			}
		}
	}()

	return out
}

// buildHead terminates every line with eol and adds the empty line that
// ends the head if the input did not.
func buildHead(lines <-chan string, eol string) []byte {
	var b strings.Builder
	last := ""
	for line := range lines {
		b.WriteString(line)
		b.WriteString(eol)
		last = line
	}
	if b.Len() == 0 || last != "" {
		b.WriteString(eol)
	}
	return []byte(b.String())
}

// send writes head, half-closes the connection and copies everything the
// server answers to w.
func send(addr string, head []byte, timeout time.Duration, w io.Writer) (int64, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := conn.Write(head); err != nil {
		return 0, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return 0, err
		}
	}
	return io.Copy(w, conn)
}
