// Package lifecycle coordinates startup, readiness, and shutdown of long-lived subsystems.
package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// ReadinessChecker reports whether a subsystem is ready to serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// ReadinessFunc adapts a function to the ReadinessChecker interface.
type ReadinessFunc func() bool

// Ready calls f.
func (f ReadinessFunc) Ready() bool {
	return f()
}

// Coordinator manages startup and shutdown hooks for the application lifecycle.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	shutdownWg sync.WaitGroup
	drain      []func()
	drainMu    sync.Mutex
	ready      bool
	readyMu    sync.RWMutex
	checkers   map[string]ReadinessChecker
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		checkers: make(map[string]ReadinessChecker),
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a function to run concurrently during startup.
func (c *Coordinator) OnStartup(fn func()) {
	c.startupWg.Go(fn)
}

// OnShutdown registers a function to run concurrently during shutdown.
// Shutdown hooks should block on <-c.Context().Done() before executing cleanup.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(fn)
}

// OnDrain registers a function to run during Shutdown before the context is
// cancelled. Drain hooks run concurrently and must return once the work they
// own has quiesced; hooks registered with OnShutdown run after them.
func (c *Coordinator) OnDrain(fn func()) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	c.drain = append(c.drain, fn)
}

// RegisterReadiness adds a named checker consulted by Ready and Pending.
func (c *Coordinator) RegisterReadiness(name string, checker ReadinessChecker) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	c.checkers[name] = checker
}

// Ready returns true after all startup hooks have completed and every
// registered checker reports ready.
func (c *Coordinator) Ready() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()

	if !c.ready {
		return false
	}
	for _, checker := range c.checkers {
		if !checker.Ready() {
			return false
		}
	}
	return true
}

// Pending returns the sorted names of registered checkers that are not ready.
func (c *Coordinator) Pending() []string {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()

	var pending []string
	for _, name := range slices.Sorted(maps.Keys(c.checkers)) {
		if !c.checkers[name].Ready() {
			pending = append(pending, name)
		}
	}
	return pending
}

// WaitForStartup blocks until all startup hooks have completed and sets the ready flag.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.readyMu.Lock()
	c.ready = true
	c.readyMu.Unlock()
}

// Shutdown runs drain hooks, cancels the context, and waits for shutdown
// hooks to complete. The timeout bounds both phases together; the context is
// cancelled even when draining times out.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	c.drainMu.Lock()
	hooks := slices.Clone(c.drain)
	c.drainMu.Unlock()

	var drainWg sync.WaitGroup
	for _, fn := range hooks {
		drainWg.Go(fn)
	}

	drained := waitChan(&drainWg)
	select {
	case <-drained:
	case <-deadline.C:
		c.cancel()
		return fmt.Errorf("drain timeout after %v", timeout)
	}

	c.cancel()

	select {
	case <-waitChan(&c.shutdownWg):
		return nil
	case <-deadline.C:
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func waitChan(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
