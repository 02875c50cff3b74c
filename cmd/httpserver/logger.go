package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var bannerColor = color.New(color.FgCyan, color.Bold)

const banner = `
  _     _   _            _
 | |__ | |_| |_ _ __ ___| |___
 | '_ \|  _|  _| '_ \___| (_-<
 |_||_| \__|\__| .__/   |_/__/
               |_|`

type consoleOptions struct {
	logFormat string
	verbose   bool
	noColor   bool
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newLogger builds the process logger. Colours are only used when out is a
// terminal and they were not turned off.
func newLogger(out io.Writer, tty bool, opts consoleOptions) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	switch opts.logFormat {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   tty && !opts.noColor,
			DisableColors: !tty || opts.noColor,
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q, expected text or json", opts.logFormat)
	}
	return logger, nil
}

func stderrLogger(opts consoleOptions) (*logrus.Logger, error) {
	return newLogger(colorable.NewColorableStderr(), isTTY(os.Stderr), opts)
}

func printBanner(w io.Writer, noColor bool) {
	c := *bannerColor
	if noColor {
		c.DisableColor()
	}
	_, _ = c.Fprintf(w, "%s\n\n", banner)
}
