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
package signal

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Observation results reported by the watcher.
const (
	resultAccepted   = "accepted"
	resultDuplicate  = "duplicate"
	resultMalformed  = "malformed"
	resultUnreadable = "unreadable"
)

// Metrics counts what the watcher does with each notification. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Notifications prometheus.Counter
	Records       *prometheus.CounterVec
}

// NewMetrics registers the watcher metrics against reg, defaulting to the
// global registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plcsim_signal_notifications_total",
		Help: "Filesystem notifications received for the signal file.",
	})
	if err := reg.Register(notifications); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		notifications = are.ExistingCollector.(prometheus.Counter)
	}
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plcsim_signal_records_total",
		Help: "Signal records read from the mailbox, labeled by what happened to them.",
	}, []string{"result"})
	if err := reg.Register(records); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		records = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Metrics{Notifications: notifications, Records: records}, nil
}

func (m *Metrics) notified() {
	if m == nil {
		return
	}
	m.Notifications.Inc()
}

func (m *Metrics) record(result string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(result).Inc()
}
