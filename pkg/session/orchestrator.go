/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/plcsim-starter/api"
	"github.com/srediag/plcsim-starter/pkg/signal"
)

// Engine is the part of the simulation runtime the state machine drives.
type Engine interface {
	Register(device string) (api.Instance, error)
	PrepareStorage(inst api.Instance) (string, error)
	PowerOn(inst api.Instance) error
	SetNetworkIdentity(inst api.Instance, id api.NetworkIdentity) error
	Teardown(inst api.Instance) error
	Shutdown() error
}

// EventLog receives the user-facing outcome lines.
type EventLog interface {
	Successf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Publisher writes outcome records back to the front-end.
type Publisher interface {
	Publish(rec signal.Record) error
}

// Notifier tells the user a bring-up attempt finished.
type Notifier interface {
	Notify(device string)
}

// Deps are the collaborators of an Orchestrator. Metrics, Notifier, Logger,
// Tracer and Meter are optional.
type Deps struct {
	Engineering api.Engineering
	Engine      Engine
	Process     api.EngineProcess
	Mailbox     Publisher
	Events      EventLog
	Notifier    Notifier
	Metrics     *Metrics
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// Orchestrator owns the session table and serializes every bring-up and
// tear-down behind one phase lock.
type Orchestrator struct {
	cfg     Config
	allowed map[string]struct{}

	eng      api.Engineering
	engine   Engine
	proc     api.EngineProcess
	mailbox  Publisher
	events   EventLog
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram

	table *Table

	// mu is the phase lock; token is only touched while it is held.
	mu    sync.Mutex
	token api.AccessToken

	doneOnce sync.Once
	done     chan struct{}
}

// New returns an orchestrator with an empty session table.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	switch {
	case deps.Engineering == nil:
		return nil, errors.New("session: engineering model is required")
	case deps.Engine == nil:
		return nil, errors.New("session: engine is required")
	case deps.Process == nil:
		return nil, errors.New("session: engine process is required")
	case deps.Mailbox == nil:
		return nil, errors.New("session: mailbox is required")
	case deps.Events == nil:
		return nil, errors.New("session: event log is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if deps.Meter == nil {
		deps.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	duration, err := deps.Meter.Float64Histogram("plcsim.session.phase.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of bring-up and tear-down phases."))
	if err != nil {
		return nil, fmt.Errorf("session: phase histogram: %w", err)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}
	return &Orchestrator{
		cfg:      cfg,
		allowed:  allowed,
		eng:      deps.Engineering,
		engine:   deps.Engine,
		proc:     deps.Process,
		mailbox:  deps.Mailbox,
		events:   deps.Events,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "orchestrator"),
		tracer:   deps.Tracer,
		duration: duration,
		table:    NewTable(),
		done:     make(chan struct{}),
	}, nil
}

// Table returns the session table. It may be read at any time.
func (o *Orchestrator) Table() *Table { return o.table }

// Done is closed once the last session ended and the engine was shut down.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Handle dispatches one record from the signal file.
func (o *Orchestrator) Handle(ctx context.Context, rec signal.Record) error {
	switch rec.Intent {
	case signal.IntentStart:
		return o.Start(ctx, rec.Device)
	case signal.IntentStop:
		return o.Stop(ctx, rec.Device)
	case signal.IntentCancel:
		// outcome record meant for the front-end
		o.logger.Debug("ignoring cancel record", "device", rec.Device)
		return nil
	default:
		o.logger.Warn("ignoring unknown intent", "intent", string(rec.Intent), "device", rec.Device)
		return nil
	}
}

// Start brings device up to Online. Errors wrapping ErrRejected,
// ErrCancelled or ErrBringUpFailed have been logged to the event log and
// left the table consistent; any other error is unclassified.
func (o *Orchestrator) Start(ctx context.Context, device string) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, end := o.trace(ctx, "start", device)
	defer func() { end(err) }()

	if _, ok := o.table.Get(device); ok {
		o.events.Errorf("Simulation of %s via PLCSIM Advanced Simulator is already running.", device)
		return fmt.Errorf("%w: %w: %s", ErrRejected, ErrAlreadyTracked, device)
	}
	handle, err := o.resolve(device)
	if err != nil {
		o.events.Errorf("Unsupported Controller Type %s via PLCSIM Advanced Simulator failed.", device)
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	token, err := o.acquire("PLCSIM Advanced Simulation process started...")
	if err != nil {
		return err
	}
	defer o.release()

	if err := o.proc.EnsureRunning(); err != nil {
		o.events.Errorf("Start Simulation of %s via PLCSIM Advanced Simulator failed : %v", device, err)
		o.shutdownIfIdle(ctx)
		return fmt.Errorf("%w: %s: %w", ErrBringUpFailed, device, err)
	}

	s := newSession(device, handle)
	s.setPhase(Downloading)
	o.table.set(s)
	o.metrics.setTracked(o.table.Len())

	token.SetText(fmt.Sprintf("Register and PowerOn %s Instance...", device))
	if err := o.register(s); err != nil {
		o.events.Errorf("Start Simulation of %s via PLCSIM Advanced Simulator failed : %v", device, err)
		return o.abort(ctx, s, err)
	}
	o.forceOffline()

	if token.CancellationRequested() {
		return o.cancel(ctx, s)
	}

	token.SetText(fmt.Sprintf("Downloading %s and going Online...", device))
	if o.notifier != nil {
		defer o.notifier.Notify(device)
	}
	if err := handle.TrustOnline(api.TLSVerificationTrusted); err != nil {
		o.events.Errorf("Online legitimation of %s failed : %v", device, err)
		return o.cancel(ctx, s)
	}
	if token.CancellationRequested() {
		return o.cancel(ctx, s)
	}
	result, err := handle.Download(o.cfg.Target, o.cfg.Pre, o.cfg.Post)
	if err != nil {
		o.events.Errorf("%s could not be downloaded. Exception : %v", device, err)
		return o.abort(ctx, s, err)
	}
	if result.State != api.DownloadSuccess {
		o.events.Errorf("%s could not be downloaded. Result : %s %v", device, result.State, result.Messages)
		return o.abort(ctx, s, fmt.Errorf("download state %s", result.State))
	}
	if err := handle.ApplyConfiguration(o.cfg.Target); err != nil {
		o.events.Errorf("%s could not be downloaded. Exception : %v", device, err)
		return o.abort(ctx, s, err)
	}

	o.bringOnline()
	if _, ok := o.table.Get(device); !ok {
		o.shutdownIfIdle(ctx)
		return fmt.Errorf("%w: %s did not go online", ErrBringUpFailed, device)
	}

	if token.CancellationRequested() {
		return o.cancel(ctx, s)
	}

	s.setPhase(Online)
	o.events.Successf("Start simulation of %s via PLCSIM Advanced Simulation is successful", device)
	return nil
}

// Stop takes an Online device offline and tears it down. The engine is
// shut down with the last device.
func (o *Orchestrator) Stop(ctx context.Context, device string) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, end := o.trace(ctx, "stop", device)
	defer func() { end(err) }()

	s, ok := o.table.Get(device)
	if !ok || s.Phase() != Online {
		o.events.Errorf("Stop simulation of %s via PLCSIM Advanced Simulator is not possible : device is not simulated", device)
		return fmt.Errorf("%w: %w: %s", ErrRejected, ErrUnknownSession, device)
	}

	token, err := o.acquire(fmt.Sprintf("%s is going Offline", device))
	if err != nil {
		return err
	}
	defer o.release()

	s.setPhase(Stopping)
	if err := s.handle.GoOffline(); err != nil {
		o.logger.Warn("go offline failed", "device", device, "error", err)
	}
	token.SetText(fmt.Sprintf("PowerOff and UnRegister from %s Instance...", device))
	if err := o.teardown(s); err != nil {
		o.events.Errorf("Stop simulation of %s via PLCSIM Advanced Simulator finished with errors : %v", device, err)
	} else {
		o.events.Successf("Stop simulation of %s via PLCSIM Advanced Simulation is successful", device)
	}

	if o.table.Len() > 0 {
		return nil
	}
	token.SetText("PLCSIM Advanced Simulation process shutting down...")
	if err := sleep(ctx, o.cfg.StopSettle); err != nil {
		return err
	}
	if token.CancellationRequested() {
		o.logger.Info("engine shutdown cancelled by user")
		return fmt.Errorf("%w: engine shutdown", ErrCancelled)
	}
	o.shutdownEngine(ctx)
	return nil
}

func (o *Orchestrator) resolve(device string) (api.Device, error) {
	handle, err := o.eng.Device(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatibleDevice, device, err)
	}
	if _, ok := o.allowed[handle.TypeIdentifier()]; !ok {
		return nil, fmt.Errorf("%w: %s has type %s", ErrIncompatibleDevice, device, handle.TypeIdentifier())
	}
	return handle, nil
}

func (o *Orchestrator) acquire(text string) (api.AccessToken, error) {
	if o.token != nil {
		return nil, ErrTokenOutstanding
	}
	token, err := o.eng.ExclusiveAccess(text)
	if err != nil {
		return nil, fmt.Errorf("acquire exclusive access: %w", err)
	}
	o.token = token
	return token, nil
}

func (o *Orchestrator) release() {
	if o.token == nil {
		return
	}
	o.token.Release()
	o.token = nil
}

// register creates, stores, powers on and addresses the engine instance.
func (o *Orchestrator) register(s *Session) error {
	inst, err := o.engine.Register(s.device)
	if err != nil {
		return err
	}
	s.inst = inst
	if s.storage, err = o.engine.PrepareStorage(inst); err != nil {
		return err
	}
	if err := o.engine.PowerOn(inst); err != nil {
		return err
	}
	id, err := s.handle.PrimaryInterface()
	if err != nil {
		return fmt.Errorf("read network interface of %s: %w", s.device, err)
	}
	return o.engine.SetNetworkIdentity(inst, id)
}

func (o *Orchestrator) forceOffline() {
	for _, s := range o.table.Sessions() {
		if err := s.handle.GoOffline(); err != nil {
			o.logger.Warn("go offline failed", "device", s.device, "error", err)
		}
	}
}

// bringOnline puts every tracked device online. A device that fails is torn
// down on its own.
func (o *Orchestrator) bringOnline() {
	for _, s := range o.table.Sessions() {
		if err := s.handle.GoOnline(); err != nil {
			o.events.Errorf("Going online of %s failed : %v", s.device, err)
			if err := o.teardown(s); err != nil {
				o.logger.Error("teardown failed", "device", s.device, "error", err)
			}
		}
	}
}

func (o *Orchestrator) trace(ctx context.Context, phase, device string) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := o.tracer.Start(ctx, "session."+phase,
		trace.WithAttributes(attribute.String("device", device)))
	return ctx, func(err error) {
		result := outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.duration.Record(ctx, time.Since(begin).Seconds(), metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("outcome", result)))
		o.metrics.transition(phase, result)
		o.logger.Debug("phase finished", "phase", phase, "device", device, "outcome", result)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
