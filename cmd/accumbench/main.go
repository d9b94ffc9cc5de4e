package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appName = "accumbench"

// Version is set via build flag -ldflags -X main.Version
var (
	Version  string
	Branch   string
	Revision string
)

func init() {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision
}

type globalOptions struct {
	LogLevel    string        `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	MetricsAddr string        `help:"Serve Prometheus metrics on this address while running, e.g. :9464." placeholder:"HOST:PORT"`
	Progress    time.Duration `help:"Interval between progress log lines, 0 disables them." default:"1s"`
}

var cli struct {
	globalOptions

	Run  runCmd  `cmd:"" default:"withargs" help:"Run a single scenario described by flags."`
	Plan planCmd `cmd:"" help:"Run the scenarios listed in a YAML plan file."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(appName),
		kong.Description("Load generator that hammers striped accumulators and checks their results."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}

type runCmd struct {
	Kind     Kind `help:"Accumulator under test." enum:"int-adder,float-adder,max,min" default:"int-adder"`
	Workers  int  `help:"Number of concurrent workers." default:"8"`
	Ops      int  `help:"Operations per worker." default:"100000"`
	MaxCells int  `help:"Cap on the number of cells, 0 for the number of CPUs." default:"0"`
}

func (cmd *runCmd) Run(opts *globalOptions) error {
	s := Scenario{
		Kind:     cmd.Kind,
		Workers:  cmd.Workers,
		Ops:      cmd.Ops,
		MaxCells: cmd.MaxCells,
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return err
	}
	return execute(opts, []Scenario{s})
}

type planCmd struct {
	File string `arg:"" type:"existingfile" help:"YAML plan file."`
}

func (cmd *planCmd) Run(opts *globalOptions) error {
	plan, err := loadPlan(cmd.File)
	if err != nil {
		return err
	}
	return execute(opts, plan.Scenarios)
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	}).With().Str("app", appName).Logger()
}

func execute(opts *globalOptions, scenarios []Scenario) error {
	setupLogger(opts.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := newMetrics()
	if opts.MetricsAddr != "" {
		srv, err := serveMetrics(opts.MetricsAddr, m.router())
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("error during metrics server shutdown")
			}
		}()
	}

	r := &runner{metrics: m, progress: opts.Progress}
	results := make([]*result, 0, len(scenarios))
	for _, s := range scenarios {
		res, err := r.run(ctx, s)
		if err != nil {
			return errors.Wrapf(err, "scenario %q", s.Name)
		}
		results = append(results, res)
	}

	renderReport(os.Stdout, results)
	log.Info().Int("scenarios", len(results)).Msg("all scenarios passed")
	return nil
}
