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
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Supervisor runs a set of probes, each on its own pooled goroutine, and
// hands the first failure to a Terminator.
type Supervisor struct {
	probes  []Probe
	term    Terminator
	logger  *slog.Logger
	metrics *Metrics
	health  healthcheck.Handler
	pool    *ants.Pool
}

// New returns a supervisor for probes. metrics may be nil.
func New(term Terminator, logger *slog.Logger, metrics *Metrics, probes ...Probe) (*Supervisor, error) {
	if len(probes) == 0 {
		return nil, errors.New("supervisor: no probes")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		probes:  probes,
		term:    term,
		logger:  logger.With("component", "supervisor"),
		metrics: metrics,
		health:  healthcheck.NewHandler(),
	}
	for _, p := range probes {
		if p.Interval <= 0 {
			return nil, fmt.Errorf("supervisor: probe %s: non-positive interval", p.Name)
		}
		s.health.AddLivenessCheck(p.Name, p.Check)
	}
	pool, err := ants.NewPool(len(probes), ants.WithPanicHandler(func(v interface{}) {
		s.fail("panic", fmt.Errorf("supervisor panic: %v", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("supervisor: pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Health exposes the probes as liveness checks.
func (s *Supervisor) Health() healthcheck.Handler {
	return s.health
}

// Start launches every probe loop. Loops end when ctx is done or after
// their probe failed.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, p := range s.probes {
		p := p
		if err := s.pool.Submit(func() { s.watch(ctx, p) }); err != nil {
			return fmt.Errorf("supervisor: start %s: %w", p.Name, err)
		}
	}
	return nil
}

// Stop releases the goroutine pool. Running loops exit with their context.
func (s *Supervisor) Stop() {
	s.pool.Release()
}

func (s *Supervisor) watch(ctx context.Context, p Probe) {
	s.logger.Debug("probe started", "probe", p.Name, "interval", p.Interval)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for first := true; ; first = false {
		if !first || !p.CheckFirst {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		if err := p.Check(); err != nil {
			s.metrics.observe(p.Name, false)
			s.fail(p.Name, err)
			return
		}
		s.metrics.observe(p.Name, true)
	}
}

func (s *Supervisor) fail(probe string, err error) {
	s.logger.Error("liveness probe failed", "probe", probe, "error", err)
	s.term.Shutdown(err)
}

// Metrics counts probe evaluations. A nil *Metrics records nothing.
type Metrics struct {
	Checks *prometheus.CounterVec
}

// NewMetrics registers the supervisor metrics against reg, defaulting to the
// global registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plcsim_supervisor_checks_total",
		Help: "Liveness probe evaluations, labeled by probe and result.",
	}, []string{"probe", "result"})
	if err := reg.Register(checks); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		checks = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Metrics{Checks: checks}, nil
}

func (m *Metrics) observe(probe string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Checks.WithLabelValues(probe, result).Inc()
}
