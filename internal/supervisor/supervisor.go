// Package supervisor implements the process-wide registry of Workers: it
// launches them, resurrects survivors from the Store on startup, runs a
// roughly-1Hz tick that reaps terminated or finished Workers, and joins
// every Worker on shutdown (spec §4.4, §5 "Supervisor tick").
//
// One goroutine per unit of concurrent work, a sync.WaitGroup-less join
// loop (explicit here, since Workers are long-lived and individually
// signalled rather than fire-and-forget), and a
// signal.Notify(os.Interrupt, syscall.SIGTERM) shutdown trigger shared
// with cmd/crawlserv.
package supervisor

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

// RunnerFactory builds a module's Runner for a Worker being started or
// resurrected. The Supervisor itself has no knowledge of crawler/parser/
// extractor/analyzer internals (spec §4.4 applies to every module
// identically); callers register one factory per store.Module.
type RunnerFactory func(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (worker.Runner, error)

type entry struct {
	module store.Module
	w      *worker.Worker
}

// Supervisor is the process-wide registry described in spec §5's "Process-
// wide mutable state is limited to: (a) the Supervisor's vector of
// Workers ... protected by a mutex".
type Supervisor struct {
	store  *store.Store
	handle *store.Handle // the Supervisor's own dedicated connection (spec §4.1)
	logger *log.Logger

	mu        sync.Mutex
	factories map[store.Module]RunnerFactory
	workers   map[uint64]entry

	serverAllowMu sync.RWMutex
	serverAllow   []string // "*" or a list of exact IPs (spec §6 server_allow)

	tickInterval time.Duration
	idleInterval time.Duration

	stopTick chan struct{}
	tickDone chan struct{}
}

// New creates a Supervisor bound to st. tickInterval defaults to one
// second (spec §5 "≈1 Hz resolution") and idleInterval to five seconds if
// zero.
func New(st *store.Store, logger *log.Logger, tickInterval, idleInterval time.Duration) (*Supervisor, error) {
	if logger == nil {
		logger = log.Default()
	}
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	if idleInterval <= 0 {
		idleInterval = 5 * time.Second
	}
	handle, err := st.NewHandle("supervisor")
	if err != nil {
		return nil, fmt.Errorf("supervisor: opening handle: %w", err)
	}
	return &Supervisor{
		store:        st,
		handle:       handle,
		logger:       logger,
		factories:    make(map[store.Module]RunnerFactory),
		workers:      make(map[uint64]entry),
		tickInterval: tickInterval,
		idleInterval: idleInterval,
	}, nil
}

// RegisterFactory binds module to the function that builds its Runner.
// Must be called before Resurrect or StartWorker for that module.
func (s *Supervisor) RegisterFactory(module store.Module, factory RunnerFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[module] = factory
}

// SetServerAllow replaces the allow-list the control endpoint consults at
// accept time (spec §6 "the server_allow list lives inside the
// Supervisor"). "*" allows every address.
func (s *Supervisor) SetServerAllow(allow []string) {
	s.serverAllowMu.Lock()
	defer s.serverAllowMu.Unlock()
	s.serverAllow = append([]string(nil), allow...)
}

// AllowList returns a copy of the current server_allow list, used by the
// control endpoint's `allow`/`disallow` commands to compute their updated
// list before calling SetServerAllow.
func (s *Supervisor) AllowList() []string {
	s.serverAllowMu.RLock()
	defer s.serverAllowMu.RUnlock()
	return append([]string(nil), s.serverAllow...)
}

// Allowed reports whether remoteIP may reach the control endpoint.
func (s *Supervisor) Allowed(remoteIP string) bool {
	s.serverAllowMu.RLock()
	defer s.serverAllowMu.RUnlock()
	for _, a := range s.serverAllow {
		if a == "*" || a == remoteIP {
			return true
		}
	}
	return false
}

// Resurrect loads every surviving Thread row from the Store and restarts
// a Worker for each (spec §3 "on process start, every Thread row ... is
// resurrected"). Workers whose module has no registered factory are
// logged and skipped rather than dropped silently.
func (s *Supervisor) Resurrect() error {
	threads, err := s.handle.GetThreads()
	if err != nil {
		return fmt.Errorf("supervisor: listing threads: %w", err)
	}
	for _, t := range threads {
		if err := s.resurrectOne(t); err != nil {
			s.logger.Printf("supervisor: resurrecting thread #%d: %v", t.ID, err)
		}
	}
	return nil
}

func (s *Supervisor) resurrectOne(t store.Thread) error {
	s.mu.Lock()
	factory, ok := s.factories[t.Module]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no runner factory registered for module %q", t.Module)
	}

	handle, err := s.store.NewHandle(fmt.Sprintf("%s#%d", t.Module, t.ID))
	if err != nil {
		return fmt.Errorf("opening handle: %w", err)
	}

	w := worker.NewFromThread(handle, t, nil, s.logger)
	runner, err := factory(handle, t.Options, w)
	if err != nil {
		handle.Close()
		return fmt.Errorf("building runner: %w", err)
	}
	w.SetRunner(runner)

	s.mu.Lock()
	s.workers[t.ID] = entry{module: t.Module, w: w}
	s.mu.Unlock()

	w.Start()
	return nil
}

// StartWorker registers and starts a brand-new Worker for module (spec §6
// "startcrawler"/"startparser"/... commands).
func (s *Supervisor) StartWorker(module store.Module, options store.ThreadOptions) (uint64, error) {
	s.mu.Lock()
	factory, ok := s.factories[module]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("supervisor: no runner factory registered for module %q", module)
	}

	handle, err := s.store.NewHandle(string(module))
	if err != nil {
		return 0, fmt.Errorf("supervisor: opening handle: %w", err)
	}

	w, err := worker.New(handle, module, options, nil, s.logger)
	if err != nil {
		handle.Close()
		return 0, fmt.Errorf("supervisor: creating worker: %w", err)
	}
	runner, err := factory(handle, options, w)
	if err != nil {
		handle.Close()
		return 0, fmt.Errorf("supervisor: building runner: %w", err)
	}
	w.SetRunner(runner)

	s.mu.Lock()
	s.workers[w.ID()] = entry{module: module, w: w}
	s.mu.Unlock()

	w.Start()
	return w.ID(), nil
}

// worker looks up a tracked Worker by its Thread id.
func (s *Supervisor) worker(id uint64) (*worker.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.workers[id]
	if !ok {
		return nil, false
	}
	return e.w, true
}

// Pause/Unpause/Stop/SendInterrupt dispatch the signalling API (spec §4.4)
// to the named Worker.
func (s *Supervisor) Pause(id uint64) error {
	w, ok := s.worker(id)
	if !ok {
		return fmt.Errorf("supervisor: no worker #%d", id)
	}
	w.Pause()
	return nil
}

func (s *Supervisor) Unpause(id uint64) error {
	w, ok := s.worker(id)
	if !ok {
		return fmt.Errorf("supervisor: no worker #%d", id)
	}
	w.Unpause()
	return nil
}

func (s *Supervisor) Stop(id uint64) error {
	w, ok := s.worker(id)
	if !ok {
		return fmt.Errorf("supervisor: no worker #%d", id)
	}
	w.Stop()
	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()
	return nil
}

// IDs returns every currently tracked Worker id, sorted, for status
// reporting.
func (s *Supervisor) IDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WorkerStatus is a point-in-time snapshot of one tracked Worker, used by
// the control endpoint's GET status text (spec §6 "GET requests return the
// current status string in plain text").
type WorkerStatus struct {
	ID            uint64
	Module        store.Module
	State         worker.State
	StatusMessage string
}

// Status snapshots every tracked Worker, sorted by id.
func (s *Supervisor) Status() []WorkerStatus {
	ids := s.IDs()
	out := make([]WorkerStatus, 0, len(ids))
	for _, id := range ids {
		w, ok := s.worker(id)
		if !ok {
			continue
		}
		out = append(out, WorkerStatus{
			ID:            id,
			Module:        w.Module(),
			State:         w.State(),
			StatusMessage: w.StatusMessage(),
		})
	}
	return out
}

// Run starts the Supervisor's own tick loop (spec §5 "the Supervisor runs
// its own loop (≈1 Hz resolution) that ... reaps Workers whose state is
// Terminated or Finished-and-released"). Call Shutdown to stop it.
func (s *Supervisor) Run() {
	s.stopTick = make(chan struct{})
	s.tickDone = make(chan struct{})
	go func() {
		defer close(s.tickDone)
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopTick:
				return
			case <-ticker.C:
				s.reap()
			}
		}
	}()
}

// reap removes every tracked Worker whose state is Terminated or Finished
// from the registry; the Thread row itself is left untouched so the
// operator can still inspect status_message (spec §4.4, §7 "the Thread row
// remains so the operator can inspect status_message").
func (s *Supervisor) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.workers {
		switch e.w.State() {
		case worker.StateTerminated, worker.StateFinished:
			delete(s.workers, id)
		}
	}
}

// Shutdown interrupts every tracked Worker simultaneously, then joins them
// all (spec §5 "No thread may be detached; the Supervisor joins every
// Worker before exit"), and stops the tick loop.
func (s *Supervisor) Shutdown() {
	if s.stopTick != nil {
		close(s.stopTick)
		<-s.tickDone
	}

	s.mu.Lock()
	workers := make([]*worker.Worker, 0, len(s.workers))
	for _, e := range s.workers {
		workers = append(workers, e.w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.SendInterrupt()
	}
	for _, w := range workers {
		w.FinishInterrupt()
	}

	s.mu.Lock()
	s.workers = make(map[uint64]entry)
	s.mu.Unlock()
}
