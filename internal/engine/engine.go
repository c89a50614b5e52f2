// Package engine bundles the buffer manager, record layer, and access
// method behind one handle and one mutex, the way the original's three
// process-global modules collapse into a single caller-owned object.
package engine

import (
	"sync"

	"pfidx/internal/am"
	"pfidx/internal/pf"
	"pfidx/internal/sp"
)

// Engine is the top-level handle an application opens once. Every
// public method serializes through a single mutex since pf/sp/am all
// assume a single-threaded caller (§5's "one client" model, Design
// Notes §9).
type Engine struct {
	mu sync.Mutex
	PF *pf.Manager
	SP *sp.Manager
	AM *am.Manager
}

// Open builds a new Engine from cfg.
func Open(cfg Config) *Engine {
	pfm := pf.Open(pf.Config{PoolSize: cfg.PoolSize, Policy: cfg.policy()})
	return &Engine{
		PF: pfm,
		SP: sp.New(pfm),
		AM: am.New(pfm),
	}
}

// Lock and Unlock let a caller bracket a multi-step operation (e.g. a
// CLI driver doing several inserts that must not interleave with a
// concurrent counters dump).
func (e *Engine) Lock()   { e.mu.Lock() }
func (e *Engine) Unlock() { e.mu.Unlock() }

// Counters returns a snapshot of the buffer manager's observability
// counters (§6.3).
func (e *Engine) Counters() pf.Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.PF.Counters
}
