// Package service supervises one pull loop per manifest inside one host
// process (expansion of spec.md §4.7/§5: "Multiple independent indexers run
// concurrently inside one host process").
package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"indexer-engine/internal/pullloop"
)

// Indexer pairs one pull loop with the identifier it reports under.
type Indexer struct {
	UID  string
	Loop *pullloop.Loop
}

// Manager starts one goroutine per pullloop.Loop (mirroring the teacher's
// one-task-per-component style), fans in completion via a buffered
// channel, and owns the shared kill switch referenced by every loop
// (spec.md §5: "a shared boolean kill switch").
type Manager struct {
	killSwitch *atomic.Bool
	indexers   []Indexer
	results    chan pullloop.Result
	wg         sync.WaitGroup
}

// NewManager builds an empty Manager with a fresh shared kill switch.
// Callers build each pullloop.Loop against KillSwitch() before calling
// Register, since the kill switch must exist before any loop does.
func NewManager() *Manager {
	return &Manager{killSwitch: new(atomic.Bool)}
}

// KillSwitch returns the shared kill switch so callers can construct
// pull loops against it, and so a signal handler in cmd/indexer can
// request cooperative shutdown later.
func (m *Manager) KillSwitch() *atomic.Bool { return m.killSwitch }

// Register adds an indexer to be started by Start. Must be called before
// Start.
func (m *Manager) Register(ix Indexer) {
	m.indexers = append(m.indexers, ix)
}

// Start launches every registered indexer's loop on its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.results = make(chan pullloop.Result, len(m.indexers))
	for _, ix := range m.indexers {
		ix := ix
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			logrus.WithField("uid", ix.UID).Info("service: indexer starting")
			res := ix.Loop.Run(ctx)
			logrus.WithField("uid", ix.UID).WithField("result", res.Kind.String()).Info("service: indexer stopped")
			m.results <- res
		}()
	}
}

// Stop sets the shared kill switch; running indexers observe it between
// pull loop iterations (cooperative cancellation, spec.md §5).
func (m *Manager) Stop() {
	m.killSwitch.Store(true)
}

// Wait blocks until every indexer has stopped and returns their join
// results in completion order.
func (m *Manager) Wait() []pullloop.Result {
	m.wg.Wait()
	close(m.results)
	out := make([]pullloop.Result, 0, len(m.indexers))
	for res := range m.results {
		out = append(out, res)
	}
	return out
}
