// Package worker implements the module-independent Worker lifecycle shared
// by the crawler, parser, extractor and analyzer modules (spec §4.4):
// connecting to the Store, tracking run/pause time, handling pause/unpause
// through a condition variable, and catching panics raised by a module's
// tick function so one Worker's failure never takes down the Supervisor.
//
// Translated from Thread.h/Thread.cpp's single-inheritance design: the
// abstract virtual methods onInit/onTick/onPause/onUnpause/onClear become
// the Runner interface, and the std::thread + condition_variable pause
// mechanism becomes a goroutine guarded by a sync.Cond.
package worker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// ThreadStore is the slice of store.Handle a Worker needs to persist its
// lifecycle (spec §3's threads table). Declared narrowly here, Go-idiom
// style, so tests can supply a fake instead of a real database connection;
// *store.Handle satisfies it without any adaptation.
type ThreadStore interface {
	AddThread(t store.Thread) (uint64, error)
	SetThreadStatus(id uint64, paused bool, message string) error
	SetThreadProgress(id uint64, progress float32) error
	SetThreadLast(id uint64, last uint64) error
	SetThreadRunTime(id uint64, seconds uint64) error
	SetThreadPauseTime(id uint64, seconds uint64) error
	DeleteThread(id uint64) error
	Log(module store.Module, entry string) error
	ReleaseAllLocks(urlList uint64, module store.Module) error
}

// Runner is implemented by each concrete module (crawler, parser,
// extractor, analyzer). Only the Worker that owns a Runner may call it;
// none of these methods are safe to call from outside the Worker's own
// goroutine.
type Runner interface {
	// OnInit prepares the module for its first tick. resumed is true when
	// the Worker was resurrected from a pre-existing Thread row (spec §3
	// "every Thread row ... is resurrected"). A false return (with no
	// error) means "stop cleanly without ticking", matching
	// Thread::onInit's bool contract.
	OnInit(resumed bool) (bool, error)
	// OnTick runs one unit of work. A false return stops the Worker after
	// OnClear runs, matching Thread::onTick's "return false to finish".
	OnTick() (bool, error)
	// OnPause/OnUnpause notify the module of a pause state transition so
	// it can release or reacquire module-specific resources (e.g. close
	// a half-read response body).
	OnPause()
	OnUnpause()
	// OnClear releases all resources held by the module. interrupted is
	// true when the Worker is stopping because of a shutdown interrupt
	// rather than OnTick returning false or OnInit failing.
	OnClear(interrupted bool)
}

// State is the Worker's single lifecycle enum (spec §4.4).
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StatePaused
	StateInterrupted
	StateFinished
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateInterrupted:
		return "interrupted"
	case StateFinished:
		return "finished"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Worker drives one Runner through its lifecycle, mirroring Thread's
// module-independent half (spec §4.4).
type Worker struct {
	id      uint64
	module  store.Module
	options store.ThreadOptions
	handle  ThreadStore
	runner  Runner
	logger  *log.Logger

	idString string

	mu          sync.Mutex
	state       State
	running     bool
	paused      bool
	interrupted bool
	resumed     bool
	terminated  bool

	pauseCond *sync.Cond

	statusMu sync.Mutex
	status   string

	last uint64

	startTime      time.Time
	pauseTimeStart time.Time
	runTime        time.Duration
	pauseTime      time.Duration

	doneCh chan struct{}
}

// NewFromThread resumes a Worker from a previously persisted Thread row
// (spec §3 "resurrection"): "constructor A: run a previously interrupted
// thread".
func NewFromThread(handle ThreadStore, t store.Thread, runner Runner, logger *log.Logger) *Worker {
	w := newWorker(handle, t.Module, t.Options, runner, logger)
	w.id = t.ID
	w.idString = fmt.Sprintf("%d", t.ID)
	w.paused = t.Paused
	w.last = t.LastID
	w.runTime = time.Duration(t.RunTimeS) * time.Second
	w.pauseTime = time.Duration(t.PauseTimeS) * time.Second
	w.resumed = true
	w.running = true
	return w
}

// New creates a brand-new Worker and registers its Thread row with the
// Store, matching "constructor B: start new thread".
func New(handle ThreadStore, module store.Module, options store.ThreadOptions, runner Runner, logger *log.Logger) (*Worker, error) {
	w := newWorker(handle, module, options, runner, logger)
	id, err := handle.AddThread(store.Thread{Module: module, Options: options})
	if err != nil {
		return nil, fmt.Errorf("worker: registering thread: %w", err)
	}
	w.id = id
	w.idString = fmt.Sprintf("%d", id)
	w.running = true
	return w, nil
}

func newWorker(handle ThreadStore, module store.Module, options store.ThreadOptions, runner Runner, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	w := &Worker{
		handle:  handle,
		module:  module,
		options: options,
		runner:  runner,
		logger:  logger,
		state:   StateCreated,
	}
	w.pauseCond = sync.NewCond(&sync.Mutex{})
	return w
}

// SetRunner binds a Runner to a Worker created with a nil Runner. Used by
// the Supervisor, which must hand the Worker to its RunnerFactory (so the
// module can call back into SetStatusMessage/Log/SetLast) before the
// Runner itself exists. Must be called before Start.
func (w *Worker) SetRunner(runner Runner) {
	w.runner = runner
}

// Start launches the Worker's goroutine. Must not be called from within
// the Worker's own Runner methods.
func (w *Worker) Start() {
	w.doneCh = make(chan struct{})
	go w.main()
}

// Pause requests a pause; the Worker finishes its current tick first (spec
// §4.4 pause semantics).
func (w *Worker) Pause() {
	w.mu.Lock()
	already := w.paused
	w.mu.Unlock()
	if already {
		return
	}
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
	_ = w.handle.SetThreadStatus(w.id, true, w.StatusMessage())
}

// Unpause resumes a paused Worker.
func (w *Worker) Unpause() {
	w.mu.Lock()
	if !w.paused {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	_ = w.handle.SetThreadStatus(w.id, false, w.StatusMessage())

	w.pauseCond.L.Lock()
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.pauseCond.Signal()
	w.pauseCond.L.Unlock()
}

// Stop halts the Worker for good and removes its Thread row (spec §3
// "deletion terminates the Worker"), matching Thread::stop.
func (w *Worker) Stop() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if running {
		w.mu.Lock()
		w.running = false
		wasPaused := w.paused
		w.mu.Unlock()
		if wasPaused {
			w.pauseCond.L.Lock()
			w.mu.Lock()
			w.paused = false
			w.mu.Unlock()
			w.pauseCond.Signal()
			w.pauseCond.L.Unlock()
		}
		if w.doneCh != nil {
			<-w.doneCh
		}
	}
	_ = w.handle.DeleteThread(w.id)
}

// SendInterrupt signals shutdown without waiting; FinishInterrupt blocks
// for completion. Splitting these lets a Supervisor interrupt every Worker
// simultaneously before waiting on any of them (spec §4.4, matching
// Thread::sendInterrupt/finishInterrupt).
func (w *Worker) SendInterrupt() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}
	w.mu.Lock()
	w.interrupted = true
	w.running = false
	wasPaused := w.paused
	w.mu.Unlock()
	if wasPaused {
		w.pauseCond.L.Lock()
		w.mu.Lock()
		w.paused = false
		w.mu.Unlock()
		w.pauseCond.Signal()
		w.pauseCond.L.Unlock()
	}
}

// FinishInterrupt waits for a previously-interrupted Worker to conclude.
func (w *Worker) FinishInterrupt() {
	w.mu.Lock()
	interrupted := w.interrupted
	w.mu.Unlock()
	if interrupted && w.doneCh != nil {
		<-w.doneCh
	}
}

func (w *Worker) ID() uint64               { return w.id }
func (w *Worker) Website() uint64          { return w.options.Website }
func (w *Worker) UrlList() uint64          { return w.options.UrlList }
func (w *Worker) Config() uint64           { return w.options.Config }
func (w *Worker) Module() store.Module     { return w.module }

func (w *Worker) IsTerminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetStatusMessage is called by the Runner to report progress text.
func (w *Worker) SetStatusMessage(message string) {
	w.statusMu.Lock()
	w.status = message
	w.statusMu.Unlock()
	w.mu.Lock()
	paused := w.paused
	w.mu.Unlock()
	_ = w.handle.SetThreadStatus(w.id, paused, message)
}

// SetProgress is called by the Runner to report a 0..1 completion
// fraction.
func (w *Worker) SetProgress(progress float32) {
	_ = w.handle.SetThreadProgress(w.id, progress)
}

// Log writes one module-prefixed, id-tagged log entry (spec §3), matching
// Thread::log's "[#<id>] <entry>" format.
func (w *Worker) Log(entry string) {
	_ = w.handle.Log(w.module, fmt.Sprintf("[#%s] %s", w.idString, entry))
}

// Last/SetLast expose the resume cursor the Runner uses between ticks.
func (w *Worker) Last() uint64 { return w.last }

func (w *Worker) SetLast(last uint64) {
	w.last = last
	_ = w.handle.SetThreadLast(w.id, last)
}

// StatusMessage returns a copy of the current status text.
func (w *Worker) StatusMessage() string {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

func (w *Worker) updateRunTime() {
	if w.startTime.IsZero() {
		return
	}
	w.runTime += time.Since(w.startTime).Truncate(time.Second)
	w.startTime = time.Time{}
	_ = w.handle.SetThreadRunTime(w.id, uint64(w.runTime.Seconds()))
}

func (w *Worker) updatePauseTime() {
	if w.pauseTimeStart.IsZero() {
		return
	}
	w.pauseTime += time.Since(w.pauseTimeStart).Truncate(time.Second)
	w.pauseTimeStart = time.Time{}
	_ = w.handle.SetThreadPauseTime(w.id, uint64(w.pauseTime.Seconds()))
}

func (w *Worker) isUnpaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.paused
}

// main is the Worker's goroutine body, directly modelled on Thread::main's
// init/tick/pause loop and its terminal exception handling.
func (w *Worker) main() {
	defer close(w.doneCh)
	defer func() {
		if r := recover(); r != nil {
			func() {
				defer func() { recover() }()
				_ = w.handle.ReleaseAllLocks(w.options.UrlList, w.module)
			}()
			w.Log(fmt.Sprintf("Failed - %v.", r))
			w.updateRunTime()
			w.updatePauseTime()
			w.mu.Lock()
			w.terminated = true
			w.state = StateTerminated
			w.mu.Unlock()
		}
	}()

	w.mu.Lock()
	w.state = StateInitializing
	w.mu.Unlock()

	ok, err := w.runner.OnInit(w.resumed)
	if err != nil {
		panic(err)
	}
	if ok {
		w.startTime = time.Now()
		w.mu.Lock()
		w.state = StateRunning
		w.mu.Unlock()

		for w.IsRunning() {
			if w.isPaused() {
				w.updateRunTime()
				w.pauseTimeStart = time.Now()
				w.mu.Lock()
				w.state = StatePaused
				w.mu.Unlock()

				w.runner.OnPause()

				w.pauseCond.L.Lock()
				for !w.isUnpaused() {
					w.pauseCond.Wait()
				}
				w.pauseCond.L.Unlock()

				if w.IsRunning() {
					w.runner.OnUnpause()
				}
				w.mu.Lock()
				w.state = StateRunning
				w.mu.Unlock()

				w.updatePauseTime()
				w.startTime = time.Now()
				continue
			}

			more, tickErr := w.runner.OnTick()
			if tickErr != nil {
				panic(tickErr)
			}
			if !more {
				w.mu.Lock()
				w.running = false
				w.mu.Unlock()
			}
		}
	}

	w.updateRunTime()

	w.mu.Lock()
	interrupted := w.interrupted
	w.mu.Unlock()

	w.runner.OnClear(interrupted)

	if interrupted {
		w.mu.Lock()
		w.state = StateInterrupted
		w.mu.Unlock()
		w.SetStatusMessage("INTERRUPTED " + w.StatusMessage())
		return
	}

	w.mu.Lock()
	w.state = StateFinished
	w.mu.Unlock()
	logStr := fmt.Sprintf("Stopped after %s running", w.runTime)
	if w.pauseTime > 0 {
		logStr += fmt.Sprintf(" and %s pausing", w.pauseTime)
	}
	logStr += "."
	w.Log(logStr)
}

func (w *Worker) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}
