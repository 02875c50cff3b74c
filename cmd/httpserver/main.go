package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nhdewitt/httpls/internal/errext"
	"github.com/nhdewitt/httpls/internal/errext/exitcodes"
)

func main() {
	c := newDefaultRootCommand()
	if err := c.cmd.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("httpserver failed")
		os.Exit(int(errext.ExitCodeOf(err, exitcodes.ServeFailed)))
	}
}
