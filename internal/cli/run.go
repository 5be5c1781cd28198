package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/genesis"
	"github.com/roach88/escrow/internal/inventory"
	"github.com/roach88/escrow/internal/journal"
	"github.com/roach88/escrow/internal/notify"
	"github.com/roach88/escrow/internal/platform/otel"
	"github.com/roach88/escrow/internal/registry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Genesis string
	Journal string
	Events  bool

	// IDGenerator overrides exchange ids (for testing). Default: UUIDv7.
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and serve JSON-line commands on stdin",
		Long: `Start the exchange engine from a genesis definition.

Each stdin line is one JSON request; each result is written to stdout.
Ops: create, accept, cancel, reject, deposit, withdraw, get, list, snapshot.

Committed transitions are delivered asynchronously to the audit journal
(--journal), to Kafka (ESCROW_KAFKA_BROKERS) and, with --events, to stderr.
The engine stops at end of input or on Ctrl-C after delivering queued events.

Example:
  escrow run --genesis ./genesis.cue --journal ./escrow.db
  echo '{"op":"snapshot","party":"alice"}' | escrow run --genesis ./genesis.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Genesis, "genesis", "", "CUE genesis file or directory (default $ESCROW_GENESIS)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite audit journal path (default $ESCROW_JOURNAL)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "write every event to stderr as JSON")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd)

	genesisPath := firstNonEmpty(opts.Genesis, opts.Config.Genesis)
	if genesisPath == "" {
		return NewExitError(ExitCommandError, "--genesis is required")
	}
	journalPath := firstNonEmpty(opts.Journal, opts.Config.JournalPath)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	tracing, err := otel.Setup(ctx, otel.Settings{
		ServiceName: opts.Config.ServiceName,
		Endpoint:    opts.Config.OTelEndpoint,
		SampleRatio: opts.Config.OTelSampleRatio,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()
	if tracing.Enabled() {
		logger.Info("tracing enabled", "endpoint", opts.Config.OTelEndpoint)
	}

	logger.Info("loading genesis", "path", genesisPath)
	spec, err := genesis.LoadCUE(genesisPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load genesis", err)
	}
	inv := inventory.New()
	reg := registry.New()
	if err := genesis.Apply(spec, inv, reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to apply genesis", err)
	}
	logger.Info("genesis applied", "parties", len(spec.Parties), "assets", len(spec.Assets))

	var sinks notify.Fanout
	var closers []func() error

	if journalPath != "" {
		j, err := journal.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		sinks = append(sinks, j)
		closers = append(closers, j.Close)
		logger.Info("journal ready", "path", journalPath)
	}

	if opts.Config.KafkaEnabled() {
		k, err := notify.NewKafkaSink(notify.KafkaConfig{
			Brokers:      opts.Config.KafkaBrokers,
			Topic:        opts.Config.KafkaTopic,
			BatchTimeout: opts.Config.KafkaBatchTimeout,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure kafka", err)
		}
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
		logger.Info("kafka sink ready", "brokers", opts.Config.KafkaBrokers, "topic", opts.Config.KafkaTopic)
	}

	hub := notify.NewHub()
	sinks = append(sinks, hub)
	if opts.Events {
		events, unsubscribe := hub.Subscribe(256, nil)
		defer unsubscribe()
		go writeEvents(cmd.ErrOrStderr(), events)
	}

	dispatcher := notify.NewDispatcher(sinks, notify.WithDispatcherLogger(logger))
	dispatchCtx := context.WithoutCancel(ctx)
	go func() {
		_ = dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		dispatcher.Close()
		<-dispatcher.Done()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("close failed", "error", err)
			}
		}
		logger.Info("engine stopped gracefully", "dropped_subscriber_events", hub.Dropped())
	}()

	engineOpts := []engine.Option{
		engine.WithSink(dispatcher),
		engine.WithLogger(logger),
		engine.WithTracerProvider(tracing.TracerProvider()),
	}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	session := NewSession(engine.New(inv, reg, engineOpts...))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("engine started")
	return serve(ctx, session, cmd.InOrStdin(), formatter)
}

// serve answers one request per input line until EOF or cancellation.
func serve(ctx context.Context, session *Session, in io.Reader, out *OutputFormatter) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to read input", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			data, cliErr := session.Handle(ctx, line)
			var err error
			if cliErr != nil {
				err = out.Error(cliErr.Code, cliErr.Message, cliErr.Details)
			} else {
				err = out.Success(data)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to write output", err)
			}
		}
	}
}

func writeEvents(w io.Writer, events <-chan notify.Event) {
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			slog.Default().Warn("event output failed", "error", err)
			return
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
