// Package task supervises the goroutines of a bridge: the acceptor loop, the
// serial supervisor and one task per endpoint.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-serbridge/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// LoopFunc performs one iteration of a looping task.
// It should return true to continue running the task, or false to stop the goroutine.
type LoopFunc func() bool

// RunFunc is the body of a one-shot task. It must return once ctx is done.
type RunFunc func(ctx context.Context)

// Manager manages the lifecycle of goroutines (tasks).
//
// Every task observes the manager's context; Stop cancels it and Wait blocks
// until every task has returned. A panic inside a task is recovered and
// logged so that it stays local to that task.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	mgr.Start("acceptor", func() bool {
//	    // ... one accept iteration ...
//	    return true // Return true to continue running, false to stop
//	})
//	mgr.Go("endpoint-3", ep.Run)
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.Mutex // serializes wg.Add against Stop
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks of the manager.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start starts a new goroutine that calls loopFunc until it returns false
// or the manager is stopped.
func (mgr *Manager) Start(name string, loopFunc LoopFunc) error {
	return mgr.spawn(name, func() {
		mgr.runTaskLoop(name, loopFunc)
	})
}

// Go starts a new goroutine running runFunc once with the manager's context.
func (mgr *Manager) Go(name string, runFunc RunFunc) error {
	return mgr.spawn(name, func() {
		mgr.callWithRecover(name, func() {
			runFunc(mgr.ctx)
		})
	})
}

func (mgr *Manager) spawn(name string, body func()) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}

	mgr.logger.Debug("start task", "name", name)

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
			mgr.wg.Done()
		}()

		body()
	}()

	return nil
}

// runTaskLoop runs a task function in a loop with context cancellation.
func (mgr *Manager) runTaskLoop(name string, loopFunc LoopFunc) {
	for {
		select {
		case <-mgr.ctx.Done():
			return
		default:
			if !mgr.callWithRecoverBool(name, loopFunc) {
				return
			}
		}
	}
}

// callWithRecover calls a function with panic protection
func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

// callWithRecoverBool calls a function that returns bool with panic protection.
// A panicking iteration stops the loop.
func (mgr *Manager) callWithRecoverBool(name string, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			result = false
		}
	}()

	return fn()
}

// Stop signals all running goroutines. Tasks started afterwards are refused.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.cancel()
}

// Wait waits for all goroutines to terminate.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}
