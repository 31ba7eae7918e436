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
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	recs []Record
}

func (r *recorder) handle(_ context.Context, rec Record) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.recs...)
}

func TestWatcherDeliversEachRecordOnce(t *testing.T) {
	dir := t.TempDir()
	file := NewFile(dir, "")
	require.NoError(t, file.Ensure())

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	mailbox := NewMailbox(file)
	w := NewWatcher(mailbox, nil, metrics)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rec.handle) }()

	frontend := NewFile(dir, "")
	// the watch is established asynchronously; keep publishing until seen
	require.Eventually(t, func() bool {
		_ = frontend.Publish(Record{IntentStart, "PLC_1"})
		return len(rec.snapshot()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, frontend.Publish(Record{IntentStart, "PLC_1"}))
	require.NoError(t, mailbox.Publish(Record{IntentCancel, "PLC_1"}))
	require.NoError(t, frontend.Publish(Record{IntentStop, "PLC_1"}))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []Record{{IntentStart, "PLC_1"}, {IntentStop, "PLC_1"}}, rec.snapshot())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Records.WithLabelValues(resultAccepted)))
	assert.Positive(t, testutil.ToFloat64(metrics.Notifications))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherDropsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	file := NewFile(dir, "")
	require.NoError(t, file.Ensure())

	w := NewWatcher(NewMailbox(file), nil, nil)
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, rec.handle) }()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, writeRaw(file.Path(), "garbage"))
	require.Eventually(t, func() bool {
		_ = file.Publish(Record{IntentStop, "PLC_9"})
		return len(rec.snapshot()) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, Record{IntentStop, "PLC_9"}, rec.snapshot()[0])
}
