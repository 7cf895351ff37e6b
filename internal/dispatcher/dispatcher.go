// Package dispatcher serializes every engine operation onto a single consumer goroutine.
//
// Callers submit a Request and block until its Result arrives on a private reply channel.
// Requests are executed one at a time in arrival order and always run to completion.
package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/MikhailWahib/minicask/internal/engine"
	"github.com/MikhailWahib/minicask/internal/metrics"
	"github.com/hashicorp/go-hclog"
)

// ErrClosed is returned for requests submitted after shutdown.
var ErrClosed = errors.New("dispatcher: shut down")

// Engine is the storage the dispatcher owns.
type Engine interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	SetWithExpire(key, value string, deadline time.Time) error
	Delete(key string) error
	Clear() error
	Close() error
}

// Op identifies a request type.
type Op int

const (
	OpGet Op = iota
	OpSet
	OpSetWithExpire
	OpDelete
	OpClear
	OpShutdown
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpSetWithExpire:
		return "set_with_expire"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	case OpShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Request is one operation submitted to the dispatcher.
type Request struct {
	Op       Op
	Key      string
	Value    string
	Deadline time.Time

	reply chan Result
}

// Result is the single answer to a Request.
type Result struct {
	Value string
	Found bool
	Err   error
}

type Dispatcher struct {
	engine   Engine
	logger   hclog.Logger
	requests chan Request
	done     chan struct{}
}

// New creates a dispatcher that takes exclusive ownership of e.
func New(e Engine, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		engine:   e,
		logger:   logger.Named("dispatcher"),
		requests: make(chan Request),
		done:     make(chan struct{}),
	}
}

// Run consumes requests until a Shutdown request has been answered. Call it exactly once.
func (d *Dispatcher) Run() {
	defer close(d.done)

	d.logger.Debug("dispatcher started")
	for {
		req := <-d.requests
		res := d.handle(req)
		req.reply <- res

		if req.Op == OpShutdown {
			d.logger.Debug("dispatcher stopped")
			return
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Submit hands req to the consumer and waits for its result.
func (d *Dispatcher) Submit(req Request) Result {
	req.reply = make(chan Result, 1)

	metrics.PendingRequests.Inc()
	defer metrics.PendingRequests.Dec()

	select {
	case d.requests <- req:
	case <-d.done:
		return Result{Err: ErrClosed}
	}
	return <-req.reply
}

// Get is a convenience wrapper around Submit.
func (d *Dispatcher) Get(key string) Result {
	return d.Submit(Request{Op: OpGet, Key: key})
}

// Set is a convenience wrapper around Submit.
func (d *Dispatcher) Set(key, value string) error {
	return d.Submit(Request{Op: OpSet, Key: key, Value: value}).Err
}

// SetWithExpire is a convenience wrapper around Submit.
func (d *Dispatcher) SetWithExpire(key, value string, deadline time.Time) error {
	return d.Submit(Request{Op: OpSetWithExpire, Key: key, Value: value, Deadline: deadline}).Err
}

// Delete is a convenience wrapper around Submit.
func (d *Dispatcher) Delete(key string) error {
	return d.Submit(Request{Op: OpDelete, Key: key}).Err
}

// Clear is a convenience wrapper around Submit.
func (d *Dispatcher) Clear() error {
	return d.Submit(Request{Op: OpClear}).Err
}

// Shutdown closes the engine and stops the loop. Later submissions fail with ErrClosed.
func (d *Dispatcher) Shutdown() error {
	return d.Submit(Request{Op: OpShutdown}).Err
}

func (d *Dispatcher) handle(req Request) Result {
	start := time.Now()

	var res Result
	switch req.Op {
	case OpGet:
		res.Value, res.Found = d.engine.Get(req.Key)
	case OpSet:
		res.Err = d.engine.Set(req.Key, req.Value)
	case OpSetWithExpire:
		res.Err = d.engine.SetWithExpire(req.Key, req.Value, req.Deadline)
	case OpDelete:
		res.Err = d.engine.Delete(req.Key)
	case OpClear:
		res.Err = d.engine.Clear()
	case OpShutdown:
		res.Err = d.engine.Close()
	default:
		res.Err = fmt.Errorf("unknown operation %s", req.Op)
	}

	metrics.ObserveOperation(req.Op.String(), resultLabel(req.Op, res), time.Since(start))
	if res.Err != nil && !engine.IsValidationError(res.Err) {
		d.logger.Error("operation failed", "op", req.Op, "key", req.Key, "error", res.Err)
	}

	return res
}

func resultLabel(op Op, res Result) string {
	switch {
	case res.Err != nil && engine.IsValidationError(res.Err):
		return metrics.ResultRejected
	case res.Err != nil:
		return metrics.ResultError
	case op == OpGet && !res.Found:
		return metrics.ResultMiss
	default:
		return metrics.ResultOK
	}
}
