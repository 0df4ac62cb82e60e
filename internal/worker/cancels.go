package worker

import (
	"context"
	"sync"
)

// Cancels tracks the cancel functions of running jobs so a request can stop
// a job that some worker is executing.
type Cancels struct {
	mu    sync.Mutex
	funcs map[string]context.CancelFunc
}

// NewCancels returns an empty registry.
func NewCancels() *Cancels {
	return &Cancels{funcs: make(map[string]context.CancelFunc)}
}

func (c *Cancels) register(jobID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[jobID] = cancel
}

func (c *Cancels) remove(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.funcs, jobID)
}

// Cancel stops the running job and reports whether one was found.
func (c *Cancels) Cancel(jobID string) bool {
	c.mu.Lock()
	cancel, ok := c.funcs[jobID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports how many jobs are executing.
func (c *Cancels) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.funcs)
}
