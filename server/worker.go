package server

import (
	"errors"
	"fmt"

	"github.com/chazu/kestrel/compiler"
)

// workspace is the analysis state owned by the worker goroutine: the last
// unit per document whose source parsed, for completion and hover.
type workspace struct {
	opts  compiler.Options
	units map[string]*compiler.Unit
}

// analyze compiles text and records the unit when it got past parsing.
func (ws *workspace) analyze(uri, text string) *compiler.Unit {
	opts := ws.opts
	opts.Name = uri
	unit := compiler.Analyze(text, opts)
	if !hasStage(unit.Diagnostics, compiler.StageParser) {
		ws.units[uri] = unit
	}
	return unit
}

func hasStage(ds compiler.Diagnostics, stage compiler.Stage) bool {
	for _, d := range ds {
		if d.Stage == stage {
			return true
		}
	}
	return false
}

var errStopped = errors.New("worker stopped")

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func(*workspace) any
	done chan workResult
}

// workResult holds the return value from a worker operation.
type workResult struct {
	value any
	err   error
}

// Worker serializes all workspace access through a single goroutine.
// LSP handlers run concurrently; they must go through the worker to avoid
// data races on the analysis state.
type Worker struct {
	ws       *workspace
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(opts compiler.Options) *Worker {
	w := &Worker{
		ws:       &workspace{opts: opts, units: make(map[string]*compiler.Unit)},
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the workspace, recovering from panics.
func (w *Worker) execute(fn func(*workspace) any) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.ws)
	}()
	return result
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func(*workspace) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
