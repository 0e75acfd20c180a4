package arena

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rankmine/pkg/domain"
)

// DefaultQuietPeriod is how long the scheduler waits after the last Schedule
// call before writing the pending batch.
const DefaultQuietPeriod = 300 * time.Millisecond

// FlushScheduler coalesces rapid entry updates into batched writes. Each
// Schedule replaces any pending write for the same entry key and restarts the
// quiet-period timer; when the timer fires the whole batch is persisted in one
// transaction.
type FlushScheduler struct {
	store   domain.PersistentStore
	log     Logger
	metrics MetricsRecorder
	quiet   time.Duration

	mu      sync.Mutex
	pending map[string]domain.Entry
	timer   *time.Timer
	closed  bool

	wg sync.WaitGroup
}

// NewFlushScheduler constructs a scheduler writing through the given store.
func NewFlushScheduler(store domain.PersistentStore, quiet time.Duration, log Logger, metrics MetricsRecorder) *FlushScheduler {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if log == nil {
		log = noopLogger{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &FlushScheduler{
		store:   store,
		log:     log,
		metrics: metrics,
		quiet:   quiet,
		pending: make(map[string]domain.Entry),
	}
}

// Schedule queues an entry for the next flush, replacing any pending write
// with the same key, and restarts the quiet-period timer.
func (f *FlushScheduler) Schedule(entry domain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("scheduler closed")
	}
	f.pending[entry.Key] = entry
	f.reportPendingLocked()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.quiet, f.fire)
	return nil
}

// Pending returns the number of entries waiting to be written.
func (f *FlushScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Drop discards any pending write for the given keys. Used when the owning
// record is being deleted in the same turn.
func (f *FlushScheduler) Drop(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.pending, key)
	}
	f.reportPendingLocked()
}

func (f *FlushScheduler) fire() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.Flush(context.Background()); err != nil {
			f.log.Error("write-behind flush failed", "error", err)
		}
	}()
}

// Flush synchronously writes the pending batch. The batch is swept and
// cleared before the write so updates arriving mid-flush land in the next
// batch; on failure the swept entries are restored unless a newer write for
// the same key is already pending.
func (f *FlushScheduler) Flush(ctx context.Context) error {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return nil
	}
	batch := f.pending
	f.pending = make(map[string]domain.Entry)
	f.reportPendingLocked()
	f.mu.Unlock()

	entries := make([]domain.Entry, 0, len(batch))
	for _, e := range batch {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	start := time.Now()
	err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutEntries(entries)
	})
	f.metrics.Observe(ctx, "flush_entries", err == nil, time.Since(start))
	if err != nil {
		f.mu.Lock()
		for key, e := range batch {
			if _, overwritten := f.pending[key]; !overwritten {
				f.pending[key] = e
			}
		}
		f.reportPendingLocked()
		f.mu.Unlock()
		return fmt.Errorf("flush %d entries: %w", len(entries), err)
	}
	f.log.Debug("flushed entry batch", "count", len(entries))
	return nil
}

// Close stops the timer, waits for any in-flight flush, and writes whatever
// is still pending. The scheduler cannot be reused afterwards.
func (f *FlushScheduler) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.wg.Wait()
	return f.Flush(ctx)
}

func (f *FlushScheduler) reportPendingLocked() {
	if r, ok := f.metrics.(PendingReporter); ok {
		r.SetPendingEntries(len(f.pending))
	}
}
