// Package app runs the two modes of plcsim-starter: the per-host session
// process that owns the simulations, and the watchdog that outlives it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plcsim-starter/adapter"
	"github.com/srediag/plcsim-starter/api"
	"github.com/srediag/plcsim-starter/internal/config"
	"github.com/srediag/plcsim-starter/internal/simulated"
	"github.com/srediag/plcsim-starter/pkg/eventlog"
	"github.com/srediag/plcsim-starter/pkg/session"
	"github.com/srediag/plcsim-starter/pkg/signal"
	"github.com/srediag/plcsim-starter/pkg/supervisor"
)

// ErrUsage is returned for launch arguments that match neither mode.
var ErrUsage = errors.New("usage: plcsim-starter [flags] [<device> <host-pid> <signal-dir>]")

// Options carry the collaborators of a run. Zero fields get production
// defaults.
type Options struct {
	Config    config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Procs     supervisor.ProcessTable
	Telemetry adapter.Telemetry
	// Exit ends the process on a forced shutdown. Defaults to os.Exit.
	Exit func(code int)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
	}
	if o.Procs == nil {
		o.Procs = supervisor.SystemProcesses{}
	}
	if o.Telemetry.Tracer == nil || o.Telemetry.Meter == nil {
		o.Telemetry = adapter.GlobalTelemetry()
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
}

// SessionArgs are the positional arguments of session mode.
type SessionArgs struct {
	Device    string
	HostPID   int32
	SignalDir string
}

// ParseSessionArgs validates device, host pid and signal directory.
func ParseSessionArgs(args []string) (SessionArgs, error) {
	if len(args) != 3 {
		return SessionArgs{}, ErrUsage
	}
	pid, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil || pid <= 0 {
		return SessionArgs{}, fmt.Errorf("%w: invalid host pid %q", ErrUsage, args[1])
	}
	if args[0] == "" || args[2] == "" {
		return SessionArgs{}, fmt.Errorf("%w: empty device or signal directory", ErrUsage)
	}
	return SessionArgs{Device: args[0], HostPID: int32(pid), SignalDir: args[2]}, nil
}

// runError is an unclassified failure while handling rec.
type runError struct {
	rec signal.Record
	err error
}

func (e *runError) Error() string {
	return fmt.Sprintf("%s Simulation of %s via PLCSIM Advanced Simulator failed : %v", e.rec.Intent, e.rec.Device, e.err)
}

func (e *runError) Unwrap() error { return e.err }

// RunSession owns the simulations of one host process. It returns when the
// last simulation stopped, the launch Start did not bring its device up,
// ctx ended, or an unclassified failure occurred. Liveness failures end the
// process through Options.Exit.
func RunSession(ctx context.Context, opts Options, args SessionArgs) (err error) {
	opts.setDefaults()
	cfg := opts.Config
	cfg.SignalDir = args.SignalDir
	logger := opts.Logger.With("mode", "session")

	if err := os.MkdirAll(cfg.SignalDir, 0o755); err != nil {
		return fmt.Errorf("create signal directory: %w", err)
	}
	events, err := eventlog.Open(filepath.Join(cfg.SignalDir, cfg.LogFile), logger)
	if err != nil {
		return err
	}
	file := signal.NewFile(cfg.SignalDir, cfg.SignalFile)
	launch := signal.Record{Intent: signal.IntentStart, Device: args.Device}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			var re *runError
			if !errors.As(err, &re) {
				re = &runError{rec: launch, err: err}
				err = re
			}
			events.Errorf("%s", re.Error())
		}
		if rmErr := file.Remove(); rmErr != nil {
			logger.Error("remove signal file", "error", rmErr)
		}
	}()

	if err := file.Ensure(); err != nil {
		return err
	}
	mailbox := signal.NewMailbox(file)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdowner := supervisor.NewShutdowner(opts.Procs, cfg.SelfName, file, logger)
	shutdowner.Exit = opts.Exit
	sup, err := newSupervisor(opts, shutdowner, logger,
		supervisor.HostProbe(opts.Procs, args.HostPID, cfg.HostPollInterval))
	if err != nil {
		return err
	}
	defer sup.Stop()
	if err := sup.Start(ctx); err != nil {
		return err
	}

	orch, err := newOrchestrator(cfg, opts, mailbox, events, logger)
	if err != nil {
		return err
	}
	if err := serveAdmin(ctx, cfg.AdminAddr, sup.Health(), opts.Registry, logger); err != nil {
		return err
	}

	sigMetrics, err := signal.NewMetrics(opts.Registry)
	if err != nil {
		return err
	}
	fatal := make(chan error, 1)
	handler := func(ctx context.Context, rec signal.Record) {
		defer func() {
			if r := recover(); r != nil {
				report(fatal, &runError{rec: rec, err: fmt.Errorf("panic: %v", r)})
			}
		}()
		if err := orch.Handle(ctx, rec); err != nil && !session.Handled(err) {
			report(fatal, &runError{rec: rec, err: err})
		}
	}

	// the launch arguments carry the first Start; the front-end's copy of it
	// in the signal file is a duplicate
	mailbox.Mark(launch)
	watcher := signal.NewWatcher(mailbox, logger, sigMetrics)
	watched := make(chan error, 1)
	go func() { watched <- watcher.Run(ctx, handler) }()
	stopWatching := func() {
		cancel()
		<-watched
	}

	if err := orch.Start(ctx, args.Device); err != nil {
		stopWatching()
		if session.Handled(err) {
			logger.Info("launch simulation did not come up", "device", args.Device, "reason", err)
			return nil
		}
		return &runError{rec: launch, err: err}
	}
	logger.Info("listening for intents", "signal_file", file.Path())

	select {
	case <-orch.Done():
		stopWatching()
		logger.Info("last simulation stopped")
		return nil
	case err := <-fatal:
		stopWatching()
		return err
	case err := <-watched:
		if err != nil {
			return fmt.Errorf("signal watcher: %w", err)
		}
		return nil
	case <-shutdowner.Done():
		stopWatching()
		return nil
	}
}

// RunWatchdog ends every orchestrator process once a peer or the engine UI
// disappears. It returns when ctx ends.
func RunWatchdog(ctx context.Context, opts Options) error {
	opts.setDefaults()
	cfg := opts.Config
	logger := opts.Logger.With("mode", "watchdog")

	file := signal.NewFile(cfg.SignalDir, cfg.SignalFile)
	shutdowner := supervisor.NewShutdowner(opts.Procs, cfg.SelfName, file, logger)
	shutdowner.Exit = opts.Exit
	sup, err := newSupervisor(opts, shutdowner, logger,
		supervisor.WatchdogProbe(opts.Procs, cfg.SelfName, cfg.EngineName, cfg.PeerPollInterval))
	if err != nil {
		return err
	}
	defer sup.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		return err
	}
	if err := serveAdmin(ctx, cfg.AdminAddr, sup.Health(), opts.Registry, logger); err != nil {
		return err
	}
	logger.Info("watching peers", "self", cfg.SelfName, "engine", cfg.EngineName)

	select {
	case <-ctx.Done():
	case <-shutdowner.Done():
	}
	return nil
}

func newSupervisor(opts Options, term supervisor.Terminator, logger *slog.Logger, probe supervisor.Probe) (*supervisor.Supervisor, error) {
	metrics, err := supervisor.NewMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}
	return supervisor.New(term, logger, metrics, probe)
}

func newOrchestrator(cfg config.Config, opts Options, mailbox *signal.Mailbox, events *eventlog.Log, logger *slog.Logger) (*session.Orchestrator, error) {
	project, err := simulated.LoadProject(cfg.ProjectPath())
	if err != nil {
		return nil, fmt.Errorf("open engineering project: %w", err)
	}
	metrics, err := session.NewMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}
	return session.New(cfg.Session(), session.Deps{
		Engineering: project,
		Engine:      adapter.NewEngine(simulated.NewRuntime(), cfg.Engine()),
		Process:     engineProcess(cfg, opts.Procs, logger),
		Mailbox:     mailbox,
		Events:      events,
		Notifier:    logNotifier{logger: logger, path: events.Path()},
		Metrics:     metrics,
		Logger:      logger,
		Tracer:      opts.Telemetry.Tracer,
		Meter:       opts.Telemetry.Meter,
	})
}

// engineProcess launches the installed engine UI, or stands in for it when
// no installation is found.
func engineProcess(cfg config.Config, procs supervisor.ProcessTable, logger *slog.Logger) api.EngineProcess {
	exe := cfg.EngineExecutable
	if exe == "" {
		if inst, err := adapter.Locate(cfg.EngineRoot); err == nil {
			exe = inst.UserInterface
		} else {
			logger.Debug("engine installation not found", "error", err)
		}
	}
	if exe != "" {
		if _, err := os.Stat(exe); err == nil {
			return adapter.NewEngineProcess(adapter.ProcessConfig{Executable: exe, Name: cfg.EngineName}, procs, logger)
		}
	}
	logger.Info("no engine executable, running the in-process engine")
	return &simulated.Process{}
}

func serveAdmin(ctx context.Context, addr string, health healthcheck.Handler, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	srv, err := adapter.ListenAdmin(addr, adapter.AdminHandler(health, gatherer), logger)
	if err != nil {
		return err
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			logger.Error("admin endpoint", "error", err)
		}
	}()
	return nil
}

func report(fatal chan<- error, err error) {
	select {
	case fatal <- err:
	default:
	}
}

type logNotifier struct {
	logger *slog.Logger
	path   string
}

func (n logNotifier) Notify(device string) {
	n.logger.Info("For more info please refer to this path", "device", device, "log", n.path)
}
