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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors of the state machine.
type Metrics struct {
	Tracked     prometheus.Gauge
	Transitions *prometheus.CounterVec
}

// NewMetrics registers the state machine collectors with reg. Collectors
// already registered by an earlier orchestrator in the same process are
// reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	tracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plcsim",
		Subsystem: "session",
		Name:      "tracked",
		Help:      "Number of devices currently simulated.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plcsim",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Phase requests by kind and outcome.",
	}, []string{"phase", "outcome"})

	var err error
	if tracked, err = register(reg, tracked); err != nil {
		return nil, err
	}
	if transitions, err = register(reg, transitions); err != nil {
		return nil, err
	}
	return &Metrics{Tracked: tracked, Transitions: transitions}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) setTracked(n int) {
	if m == nil {
		return
	}
	m.Tracked.Set(float64(n))
}

func (m *Metrics) transition(phase, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(phase, outcome).Inc()
}

// outcome classifies the result of a phase for metrics and spans.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
