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
	"fmt"

	"github.com/srediag/plcsim-starter/pkg/signal"
)

// teardown releases the engine instance of s and drops it from the table.
// Every step runs; the failures are returned joined.
func (o *Orchestrator) teardown(s *Session) error {
	var err error
	if s.inst != nil {
		err = o.engine.Teardown(s.inst)
		s.inst = nil
	}
	s.setPhase(Idle)
	o.table.remove(s.device)
	o.metrics.setTracked(o.table.Len())
	return err
}

// abort tears down a failed bring-up and shuts the engine down if no other
// device remains.
func (o *Orchestrator) abort(ctx context.Context, s *Session, cause error) error {
	if err := o.teardown(s); err != nil {
		o.logger.Error("teardown after failed bring-up", "device", s.device, "error", err)
	}
	o.shutdownIfIdle(ctx)
	return fmt.Errorf("%w: %s: %w", ErrBringUpFailed, s.device, cause)
}

// cancel is the Cancelling path: the device goes away, the front-end is told
// and the remaining devices go back online.
func (o *Orchestrator) cancel(ctx context.Context, s *Session) error {
	s.setPhase(Cancelling)
	siblings := o.table.Len() > 1
	if err := s.handle.GoOffline(); err != nil {
		o.logger.Warn("go offline failed", "device", s.device, "error", err)
	}
	if err := o.teardown(s); err != nil {
		o.logger.Error("teardown after cancellation", "device", s.device, "error", err)
	}
	if err := o.mailbox.Publish(signal.Record{Intent: signal.IntentCancel, Device: s.device}); err != nil {
		o.logger.Error("publish cancel record", "device", s.device, "error", err)
	}
	o.bringOnline()
	// a cancelled device alone keeps the engine; siblings lost on the way back
	// online do not
	if siblings {
		o.shutdownIfIdle(ctx)
	}
	o.logger.Info("simulation cancelled by user", "device", s.device)
	return fmt.Errorf("%w: %s", ErrCancelled, s.device)
}

func (o *Orchestrator) shutdownIfIdle(ctx context.Context) {
	if o.table.Len() == 0 {
		o.shutdownEngine(ctx)
	}
}

// shutdownEngine stops the runtime and its UI process and closes Done.
func (o *Orchestrator) shutdownEngine(ctx context.Context) {
	if err := o.engine.Shutdown(); err != nil {
		o.logger.Error("engine shutdown", "error", err)
	}
	if err := o.proc.Kill(); err != nil {
		o.logger.Error("kill engine process", "error", err)
	}
	if err := sleep(ctx, o.cfg.EngineExitWait); err != nil {
		o.logger.Debug("engine exit wait interrupted", "error", err)
	}
	o.doneOnce.Do(func() { close(o.done) })
}
