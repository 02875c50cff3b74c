// Command tcplistener accepts TCP connections one at a time and prints the
// request head parsed from each.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/nhdewitt/httpls/internal/request"
)

func main() {
	addr := pflag.StringP("addr", "a", ":42069", "`address` to listen on")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("error listening")
	}
	defer listener.Close()

	log.WithField("addr", listener.Addr().String()).Info("listening for TCP traffic")
	for {
		c, err := listener.Accept()
		if err != nil {
			log.WithError(err).Fatal("error accepting connection")
		}
		peer := c.RemoteAddr().String()
		log.WithField("peer", peer).Debug("connection accepted")

		req, err := request.RequestFromReader(c)
		_ = c.Close()
		if err != nil {
			entry := log.WithError(err).WithField("peer", peer)
			if errors.Is(err, request.ErrMalformed) {
				entry.Warn("malformed request")
			} else {
				entry.Warn("connection error")
			}
			continue
		}
		printRequest(os.Stdout, req)
		log.WithField("peer", peer).Debug("connection closed")
	}
}

func printRequest(w io.Writer, req *request.Request) {
	fmt.Fprintln(w, "Request line:")
	fmt.Fprintf(w, "- Method: %s\n", req.RequestLine.Method)
	fmt.Fprintf(w, "- Path: %s\n", req.RequestLine.Path)
	fmt.Fprintf(w, "- Version: %s\n", req.RequestLine.HttpVersion)
	fmt.Fprintln(w, "Headers:")
	req.Headers.Each(func(key, value string) bool {
		fmt.Fprintf(w, "- %s: %s\n", key, value)
		return true
	})
}
