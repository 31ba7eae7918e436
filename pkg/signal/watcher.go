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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/fsnotify/fsnotify"
)

// drainBatch bounds how many queued notifications one read absorbs.
const drainBatch = 64

// Handler receives every new record observed in the mailbox. Calls are
// sequential.
type Handler func(ctx context.Context, rec Record)

// Watcher turns write notifications on the signal file into records.
type Watcher struct {
	mailbox *Mailbox
	logger  *slog.Logger
	metrics *Metrics
}

// NewWatcher returns a watcher for mailbox. metrics may be nil.
func NewWatcher(mailbox *Mailbox, logger *slog.Logger, metrics *Metrics) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		mailbox: mailbox,
		logger:  logger.With("component", "signal-watcher"),
		metrics: metrics,
	}
}

// Run watches the signal directory until ctx is done and calls handler for
// every record that passes the dedup rule. Notifications that arrive while a
// handler runs are coalesced into one read.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("signal: new watcher: %w", err)
	}
	defer fw.Close()

	file := w.mailbox.File()
	if err := fw.Add(file.Dir()); err != nil {
		return fmt.Errorf("signal: watch %s: %w", file.Dir(), err)
	}

	pending := queue.New(drainBatch)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		w.dispatch(ctx, pending, handler)
	}()
	defer func() {
		pending.Dispose()
		<-dispatched
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file.Name() || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.metrics.notified()
			if err := pending.Put(ev.Op); err != nil {
				return nil
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("signal: watcher: %w", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, pending *queue.Queue, handler Handler) {
	for {
		items, err := pending.Get(drainBatch)
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		w.logger.Debug("signal file changed", "notifications", len(items))

		rec, ok, err := w.mailbox.Next()
		switch {
		case errors.Is(err, ErrMalformedRecord):
			w.metrics.record(resultMalformed)
			w.logger.Debug("dropping malformed signal record", "error", err)
		case err != nil:
			w.metrics.record(resultUnreadable)
			w.logger.Debug("signal file unreadable", "error", err)
		case !ok:
			w.metrics.record(resultDuplicate)
		default:
			w.metrics.record(resultAccepted)
			w.logger.Info("signal record observed", "intent", rec.Intent, "device", rec.Device)
			handler(ctx, rec)
		}
	}
}
