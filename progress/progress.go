// Package progress polls a drive for block statistics
// and renders the aggregate to an indicator.
package progress

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bobg/bsdrive/drive"
)

// StatSource reports per-file block statistics.
// *drive.Drive is a StatSource.
type StatSource interface {
	Stats(ctx context.Context, path string) (map[string]drive.FileStats, error)
}

// Sample is the aggregate of one stats query.
type Sample struct {
	Downloaded int64
	Total      int64
}

// Aggregate sums the stats of all files.
func Aggregate(stats map[string]drive.FileStats) Sample {
	var s Sample
	for _, fs := range stats {
		s.Downloaded += fs.DownloadedBlocks
		s.Total += fs.Blocks
	}
	return s
}

// Indicator displays progress.
type Indicator interface {
	// Start is called once, with the first sample.
	Start(total int64)

	// Update is called with each sample, including the first.
	Update(current, total int64)

	// Label names the file currently being transferred.
	Label(path string)

	// Stop is called once, at the end.
	Stop()
}

// Monitor polls a StatSource and feeds an Indicator.
// At most one query is in flight at a time.
type Monitor struct {
	src      StatSource
	ind      Indicator
	interval time.Duration
	timeout  time.Duration

	gate *semaphore.Weighted

	mu      sync.Mutex
	started bool
	stopped bool
	label   string
	last    Sample
	lastErr string

	wg       sync.WaitGroup
	halt     context.Context // canceled by Stop
	cancel   context.CancelFunc
	stopOnce sync.Once
}

type Option func(*Monitor)

// Interval sets the time between polls.
// The default is 200ms.
func Interval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// Timeout bounds each stats query.
// The default is 5s.
func Timeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

func NewMonitor(src StatSource, ind Indicator, opts ...Option) *Monitor {
	m := &Monitor{
		src:      src,
		ind:      ind,
		interval: 200 * time.Millisecond,
		timeout:  5 * time.Second,
		gate:     semaphore.NewWeighted(1),
	}
	m.halt, m.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tick runs one stats query and renders the result,
// unless a query is already in flight or the monitor is stopped,
// in which case it does nothing and reports false.
func (m *Monitor) Tick(ctx context.Context) (Sample, bool, error) {
	if !m.gate.TryAcquire(1) {
		return Sample{}, false, nil
	}
	defer m.gate.Release(1)
	return m.query(ctx)
}

// Refresh is like Tick but waits for any query in flight to finish
// instead of skipping.
func (m *Monitor) Refresh(ctx context.Context) (Sample, error) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return Sample{}, err
	}
	defer m.gate.Release(1)
	s, _, err := m.query(ctx)
	return s, err
}

// query must be called with the gate held.
func (m *Monitor) query(ctx context.Context) (Sample, bool, error) {
	if m.isStopped() {
		return Sample{}, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	defer context.AfterFunc(m.halt, cancel)()

	stats, err := m.src.Stats(ctx, "/")
	if err != nil {
		return Sample{}, false, err
	}
	s := Aggregate(stats)
	m.render(s)
	return s, true, nil
}

func (m *Monitor) render(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if !m.started {
		m.ind.Start(s.Total)
		if m.label != "" {
			m.ind.Label(m.label)
		}
		m.started = true
	}
	m.ind.Update(s.Downloaded, s.Total)
	m.last = s
}

// Last is the most recent sample rendered.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Run polls every interval until ctx is canceled or Stop is called.
// Query errors are logged (once per distinct message) and otherwise ignored.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.halt.Done():
			return
		case <-ticker.C:
			if m.isStopped() {
				return
			}
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				if _, _, err := m.Tick(ctx); err != nil {
					m.logErr(err)
				}
			}()
		}
	}
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Monitor) logErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || err.Error() == m.lastErr {
		return
	}
	m.lastErr = err.Error()
	log.Printf("querying transfer stats: %s", err)
}

// Label shows path as the file being transferred.
func (m *Monitor) Label(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.label = path
	if m.started {
		m.ind.Label(path)
	}
}

// Stop ends Run, cancels any query in flight,
// waits for it to return,
// and stops the indicator.
// No query starts after Stop begins.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		m.cancel()
		m.gate.Acquire(context.Background(), 1)
		m.gate.Release(1)

		m.mu.Lock()
		if m.started {
			m.ind.Stop()
		}
		m.mu.Unlock()
	})
}
