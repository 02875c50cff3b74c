package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhdewitt/httpls/internal/errext"
	"github.com/nhdewitt/httpls/internal/errext/exitcodes"
	"github.com/nhdewitt/httpls/internal/handlers"
	"github.com/nhdewitt/httpls/internal/server"
)

type rootCommand struct {
	cmd     *cobra.Command
	fs      afero.Fs
	stdout  io.Writer
	lookup  func(string) (string, bool)
	console consoleOptions
	// ready, when set, receives the running server once it is listening.
	ready func(*server.Server)
}

func newRootCommand(fs afero.Fs, stdout io.Writer, lookup func(string) (string, bool)) *rootCommand {
	c := &rootCommand{fs: fs, stdout: stdout, lookup: lookup}
	c.cmd = &cobra.Command{
		Use:           "httpserver",
		Short:         "serve HTTP/1.0 requests straight from TCP",
		Long:          bannerColor.Sprintf("%s\n", banner),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	flags := c.cmd.Flags()
	flags.AddFlagSet(configFlagSet())
	flags.StringVar(&c.console.logFormat, "log-format", "text", "log output format: text or json")
	flags.BoolVarP(&c.console.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&c.console.noColor, "no-color", false, "disable colored output")
	return c
}

func (c *rootCommand) run(cmd *cobra.Command, _ []string) error {
	logger, err := stderrLogger(c.console)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return c.serve(cmd.Context(), logger)
}

func (c *rootCommand) serve(ctx context.Context, logger *logrus.Logger) error {
	conf, delay, err := getConsolidatedConfig(c.cmd.Flags(), c.lookup)
	if err != nil {
		return err
	}
	handler, err := c.buildHandler(conf, delay)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	srv, err := server.ListenAndServe(conf.Host.String, int(conf.Port.Int64), handler, server.Options{
		Backend: conf.Backend.String,
		Workers: int(conf.Workers.Int64),
		Timings: conf.Timings.Bool,
		Logger:  logger,
	})
	if err != nil {
		return errext.WithExitCodeIfNone(fmt.Errorf("could not start server: %w", err), exitcodes.CannotListen)
	}

	printBanner(c.stdout, c.console.noColor)
	logger.WithFields(logrus.Fields{
		"addr":    srv.Addr().String(),
		"backend": srv.Backend().Name(),
		"handler": conf.Handler.String,
	}).Info("server started")
	if c.ready != nil {
		c.ready(srv)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down, waiting for in-flight connections")
		start := time.Now()
		if err := srv.Close(); err != nil {
			return errext.WithExitCodeIfNone(fmt.Errorf("closing listener: %w", err), exitcodes.ServeFailed)
		}
		srv.Wait()
		logger.WithField("waited", time.Since(start)).Info("server stopped")
		return nil
	})
	return g.Wait()
}

func (c *rootCommand) buildHandler(conf Config, delay time.Duration) (server.Handler, error) {
	switch conf.Handler.String {
	case handlerCounter:
		return &handlers.Counter{Max: int(conf.CounterMax.Int64), Delay: delay}, nil
	case handlerStatic:
		if conf.StaticFile.Valid && conf.StaticFile.String != "" {
			return handlers.StaticFromFile(c.fs, conf.StaticFile.String)
		}
		return &handlers.Static{Body: []byte(conf.StaticBody.String)}, nil
	default:
		return handlers.Hello{}, nil
	}
}

func newDefaultRootCommand() *rootCommand {
	return newRootCommand(afero.NewOsFs(), colorable.NewColorableStdout(), os.LookupEnv)
}
