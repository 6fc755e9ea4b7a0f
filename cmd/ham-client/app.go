package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/ham-dashboard/ham-client/internal/api"
	"github.com/ham-dashboard/ham-client/internal/config"
	"github.com/ham-dashboard/ham-client/internal/dispatch"
	"github.com/ham-dashboard/ham-client/internal/events"
	"github.com/ham-dashboard/ham-client/internal/handlers"
	"github.com/ham-dashboard/ham-client/internal/logging"
	"github.com/ham-dashboard/ham-client/internal/output"
	"github.com/ham-dashboard/ham-client/internal/shutdown"
)

const closeTimeout = 5 * time.Second

// app holds what a single invocation builds before running a command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	printer *output.Printer
	logger  zerolog.Logger
	cfg     *config.Config

	client  *api.Client
	channel *events.Channel
	coord   *shutdown.Coordinator
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, printer: output.New(nil, stdout, stderr)}
	err := a.command().Run(ctx, args)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.printer.Error(err)
		return 1
	}
	return 0
}

func (a *app) command() *cli.Command {
	registry := handlers.Commands()
	var commands []*cli.Command
	for _, def := range registry.All() {
		commands = append(commands, &cli.Command{
			Name:      def.Name,
			Usage:     def.Usage,
			ArgsUsage: def.ArgsUsage,
			Category:  def.Category,
			Action:    a.action(def),
		})
	}

	return &cli.Command{
		Name:           "ham-client",
		Usage:          "Inspect and track dashboard entities and follow their live state",
		Version:        fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Writer:         a.stdout,
		ErrWriter:      a.stderr,
		Flags:          flags(),
		Commands:       commands,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			Sources: cli.EnvVars("HAM_CONFIG"),
		},
		&cli.StringFlag{Name: "url", Usage: "Backend base URL (overrides " + config.EnvURL + ")"},
		&cli.StringFlag{Name: "token", Usage: "Bearer credential (overrides " + config.EnvToken + ")"},
		&cli.StringFlag{Name: "transport", Usage: "Event transport: sse or websocket"},
		&cli.StringFlag{Name: "events-path", Usage: "Path of the event stream endpoint"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"format"},
			Value:   string(output.FormatDefault),
			Usage:   "Output format: json, compact, or default",
		},
		&cli.BoolFlag{Name: "json", Usage: "Use JSON output format (machine-readable)"},
		&cli.BoolFlag{Name: "compact", Usage: "Use compact output format (single-line entries)"},
		&cli.BoolFlag{Name: "no-headers", Usage: "Hide section headers and titles"},
		&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		&cli.IntFlag{Name: "max-items", Usage: "Limit output to N items (0 = unlimited)"},
		&cli.DurationFlag{Name: "duration", Usage: "Stop streaming commands after this long"},
	}
}

// action adapts a registered handler to a cli action.
func (a *app) action(def *handlers.CommandDefinition) cli.ActionFunc {
	handler := handlers.Apply(handlers.WithTiming(), def.Handler)
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := a.setup(ctx, cmd); err != nil {
			return err
		}
		stop := a.coord.HandleSignals()
		defer stop()

		hctx := &handlers.Context{
			Ctx:      logging.NewContextWithLogger(a.coord.Context(), a.logger),
			API:      a.client,
			Events:   a.channel,
			Editor:   dispatch.NewEditor(a.client, a.logger),
			Out:      a.printer,
			Logger:   a.logger,
			Args:     append([]string{def.Name}, cmd.Args().Slice()...),
			Duration: cmd.Duration("duration"),
		}
		return handler(hctx)
	}
}

// setup resolves the output format, the configuration and the clients.
// Configuration precedence is file, then environment, then flags.
func (a *app) setup(ctx context.Context, cmd *cli.Command) error {
	outCfg, err := outputConfig(cmd)
	if err != nil {
		return err
	}
	a.printer = output.New(outCfg, a.stdout, a.stderr)

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.New(a.stderr, cfg.LogLevel, outCfg.NoColor)
	if err != nil {
		return err
	}

	a.client = api.NewClient(cfg.URL,
		api.WithToken(cfg.Token),
		api.WithCacheTTL(cfg.CacheTTL),
		api.WithLogger(a.logger),
	)

	var transport events.Transport
	if cfg.Transport == config.TransportWebSocket {
		transport = events.NewWebSocketTransport(cfg.EventsURL(), nil)
	} else {
		transport = events.NewSSETransport(cfg.EventsURL(), nil)
	}
	channelOpts := []events.Option{
		events.WithDiscriminator(cfg.Discriminator),
		events.WithBackoff(events.ExponentialBackoff(cfg.Backoff.Initial, cfg.Backoff.Max)),
		events.WithLogger(a.logger),
		events.WithStateHook(func(s events.State) {
			a.logger.Debug().Stringer("state", s).Msg("event channel")
		}),
	}
	if cfg.Token != "" {
		channelOpts = append(channelOpts, events.WithCredential(cfg.Token))
	}
	a.channel = events.NewChannel(transport, channelOpts...)

	a.coord, _ = shutdown.New(ctx,
		shutdown.WithGracePeriod(closeTimeout),
		shutdown.WithLogger(a.logger),
	)
	a.coord.RegisterCleanup("api client", func(context.Context) error {
		return a.client.Close()
	})
	a.coord.RegisterCleanup("event channel", func(ctx context.Context) error {
		return a.channel.Close(ctx)
	})

	a.logger.Debug().
		Str("url", cfg.URL).
		Str("transport", cfg.Transport).
		Str("events", cfg.EventsURL()).
		Msg("configured")
	return nil
}

// close releases what setup built. It is a no-op when setup never ran.
func (a *app) close() error {
	if a.coord == nil {
		return nil
	}
	return a.coord.Shutdown("command finished")
}

func outputConfig(cmd *cli.Command) (*output.Config, error) {
	format, err := output.ParseFormat(cmd.String("output"))
	if err != nil {
		return nil, err
	}
	switch {
	case cmd.Bool("json"):
		format = output.FormatJSON
	case cmd.Bool("compact"):
		format = output.FormatCompact
	}
	return &output.Config{
		Format:      format,
		ShowHeaders: !cmd.Bool("no-headers"),
		MaxItems:    int(cmd.Int("max-items")),
		NoColor:     cmd.Bool("no-color") || color.NoColor,
	}, nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config, cmd *cli.Command) {
	for name, dst := range map[string]*string{
		"url":         &cfg.URL,
		"token":       &cfg.Token,
		"transport":   &cfg.Transport,
		"events-path": &cfg.EventsPath,
		"log-level":   &cfg.LogLevel,
	} {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	if cmd.IsSet("transport") {
		cfg.Transport = strings.ToLower(cfg.Transport)
	}
}
