package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"github.com/nhdewitt/httpls/internal/backend"
	"github.com/nhdewitt/httpls/internal/errext"
	"github.com/nhdewitt/httpls/internal/errext/exitcodes"
	"github.com/nhdewitt/httpls/internal/handlers"
)

const envPrefix = "httpls"

const (
	handlerHello   = "hello"
	handlerCounter = "counter"
	handlerStatic  = "static"
)

// Config holds the startup parameters. Every field is nullable so env and
// flag values only override what was actually set.
type Config struct {
	Host         null.String `json:"host" envconfig:"host"`
	Port         null.Int    `json:"port" envconfig:"port"`
	Backend      null.String `json:"backend" envconfig:"backend"`
	Workers      null.Int    `json:"workers" envconfig:"workers"`
	Handler      null.String `json:"handler" envconfig:"handler"`
	StaticFile   null.String `json:"staticFile" envconfig:"static_file"`
	StaticBody   null.String `json:"staticBody" envconfig:"static_body"`
	CounterDelay null.String `json:"counterDelay" envconfig:"counter_delay"`
	CounterMax   null.Int    `json:"counterMax" envconfig:"counter_max"`
	Timings      null.Bool   `json:"timings" envconfig:"timings"`
}

func defaultConfig() Config {
	return Config{
		Host:         null.NewString("127.0.0.1", false),
		Port:         null.NewInt(8080, false),
		Backend:      null.NewString(backend.NamePool, false),
		Workers:      null.NewInt(int64(runtime.NumCPU()), false),
		Handler:      null.NewString(handlerHello, false),
		StaticBody:   null.NewString(handlers.DefaultBytes, false),
		CounterDelay: null.NewString("1s", false),
		CounterMax:   null.NewInt(10, false),
		Timings:      null.NewBool(true, false),
	}
}

// Apply overwrites the fields of c that are set in cfg.
func (c Config) Apply(cfg Config) Config {
	if cfg.Host.Valid {
		c.Host = cfg.Host
	}
	if cfg.Port.Valid {
		c.Port = cfg.Port
	}
	if cfg.Backend.Valid {
		c.Backend = cfg.Backend
	}
	if cfg.Workers.Valid {
		c.Workers = cfg.Workers
	}
	if cfg.Handler.Valid {
		c.Handler = cfg.Handler
	}
	if cfg.StaticFile.Valid {
		c.StaticFile = cfg.StaticFile
	}
	if cfg.StaticBody.Valid {
		c.StaticBody = cfg.StaticBody
	}
	if cfg.CounterDelay.Valid {
		c.CounterDelay = cfg.CounterDelay
	}
	if cfg.CounterMax.Valid {
		c.CounterMax = cfg.CounterMax
	}
	if cfg.Timings.Valid {
		c.Timings = cfg.Timings
	}
	return c
}

// Validate checks the consolidated values and returns the parsed counter
// delay.
func (c Config) Validate() (time.Duration, error) {
	if c.Port.Int64 < 0 || c.Port.Int64 > 65535 {
		return 0, fmt.Errorf("invalid port %d", c.Port.Int64)
	}
	switch c.Backend.String {
	case backend.NameThread, backend.NamePool:
	default:
		return 0, fmt.Errorf("unknown backend %q, expected %q or %q",
			c.Backend.String, backend.NameThread, backend.NamePool)
	}
	if c.Workers.Int64 < 1 {
		return 0, fmt.Errorf("workers must be at least 1, got %d", c.Workers.Int64)
	}
	switch c.Handler.String {
	case handlerHello, handlerCounter, handlerStatic:
	default:
		return 0, fmt.Errorf("unknown handler %q", c.Handler.String)
	}
	if c.CounterMax.Int64 < 1 {
		return 0, fmt.Errorf("counter-max must be at least 1, got %d", c.CounterMax.Int64)
	}
	delay, err := time.ParseDuration(c.CounterDelay.String)
	if err != nil {
		return 0, fmt.Errorf("invalid counter-delay: %w", err)
	}
	if delay < 0 {
		return 0, fmt.Errorf("counter-delay must not be negative, got %s", delay)
	}
	return delay, nil
}

func configFlagSet() *pflag.FlagSet {
	def := defaultConfig()
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.String("host", def.Host.String, "`address` to listen on")
	flags.Int64P("port", "p", def.Port.Int64, "TCP `port` to listen on")
	flags.StringP("backend", "b", def.Backend.String, "concurrency backend: thread or pool")
	flags.Int64P("workers", "w", def.Workers.Int64, "processors for the pool backend")
	flags.String("handler", def.Handler.String, "handler to serve: hello, counter or static")
	flags.String("static-file", "", "read the static handler's body from `path`")
	flags.String("static-body", def.StaticBody.String, "body served by the static handler")
	flags.String("counter-delay", def.CounterDelay.String, "delay between counter lines")
	flags.Int64("counter-max", def.CounterMax.Int64, "largest counter start value")
	flags.Bool("timings", def.Timings.Bool, "append phase durations to access log lines")
	return flags
}

func getFlagConfig(flags *pflag.FlagSet) Config {
	return Config{
		Host:         getNullString(flags, "host"),
		Port:         getNullInt64(flags, "port"),
		Backend:      getNullString(flags, "backend"),
		Workers:      getNullInt64(flags, "workers"),
		Handler:      getNullString(flags, "handler"),
		StaticFile:   getNullString(flags, "static-file"),
		StaticBody:   getNullString(flags, "static-body"),
		CounterDelay: getNullString(flags, "counter-delay"),
		CounterMax:   getNullInt64(flags, "counter-max"),
		Timings:      getNullBool(flags, "timings"),
	}
}

func readEnvConfig(lookup func(string) (string, bool)) (conf Config, err error) {
	err = envconfig.Process(envPrefix, &conf, lookup)
	return conf, err
}

// getConsolidatedConfig layers defaults, the environment and flags, in that
// order.
func getConsolidatedConfig(flags *pflag.FlagSet, lookup func(string) (string, bool)) (Config, time.Duration, error) {
	envConf, err := readEnvConfig(lookup)
	if err != nil {
		return Config{}, 0, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	conf := defaultConfig().Apply(envConf).Apply(getFlagConfig(flags))
	delay, err := conf.Validate()
	if err != nil {
		return conf, 0, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return conf, delay, nil
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	v, err := flags.GetBool(key)
	if err != nil {
		panic(err)
	}
	return null.NewBool(v, flags.Changed(key))
}

func getNullInt64(flags *pflag.FlagSet, key string) null.Int {
	v, err := flags.GetInt64(key)
	if err != nil {
		panic(err)
	}
	return null.NewInt(v, flags.Changed(key))
}

func getNullString(flags *pflag.FlagSet, key string) null.String {
	v, err := flags.GetString(key)
	if err != nil {
		panic(err)
	}
	return null.NewString(v, flags.Changed(key))
}
