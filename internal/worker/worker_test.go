package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	statuses []string
	deleted  bool
	released bool
}

func (f *fakeStore) AddThread(t store.Thread) (uint64, error) { return 1, nil }
func (f *fakeStore) SetThreadStatus(id uint64, paused bool, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, message)
	return nil
}
func (f *fakeStore) SetThreadProgress(id uint64, progress float32) error    { return nil }
func (f *fakeStore) SetThreadLast(id uint64, last uint64) error             { return nil }
func (f *fakeStore) SetThreadRunTime(id uint64, seconds uint64) error       { return nil }
func (f *fakeStore) SetThreadPauseTime(id uint64, seconds uint64) error     { return nil }
func (f *fakeStore) DeleteThread(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
	return nil
}
func (f *fakeStore) Log(module store.Module, entry string) error { return nil }
func (f *fakeStore) ReleaseAllLocks(urlList uint64, module store.Module) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	return nil
}

// countingRunner ticks a fixed number of times then reports done.
type countingRunner struct {
	mu       sync.Mutex
	ticks    int
	maxTicks int
	paused   int
	cleared  bool
	interrupted bool
}

func (r *countingRunner) OnInit(resumed bool) (bool, error) { return true, nil }
func (r *countingRunner) OnTick() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	time.Sleep(time.Millisecond)
	return r.ticks < r.maxTicks, nil
}
func (r *countingRunner) OnPause() {
	r.mu.Lock()
	r.paused++
	r.mu.Unlock()
}
func (r *countingRunner) OnUnpause() {}
func (r *countingRunner) OnClear(interrupted bool) {
	r.mu.Lock()
	r.cleared = true
	r.interrupted = interrupted
	r.mu.Unlock()
}

func TestWorkerRunsUntilTickReturnsFalse(t *testing.T) {
	fs := &fakeStore{}
	runner := &countingRunner{maxTicks: 3}
	w, err := New(fs, store.ModuleCrawler, store.ThreadOptions{}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()

	deadline := time.After(time.Second)
	for {
		if w.State() == StateFinished {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker did not finish in time, state=%v", w.State())
		case <-time.After(time.Millisecond):
		}
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.ticks != 3 {
		t.Errorf("ticks = %d, want 3", runner.ticks)
	}
	if !runner.cleared {
		t.Errorf("OnClear was not called")
	}
	if runner.interrupted {
		t.Errorf("interrupted = true, want false for a clean finish")
	}
}

func TestWorkerPauseUnpause(t *testing.T) {
	fs := &fakeStore{}
	runner := &countingRunner{maxTicks: 1000000}
	w, err := New(fs, store.ModuleCrawler, store.ThreadOptions{}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()

	time.Sleep(5 * time.Millisecond)
	w.Pause()

	deadline := time.After(time.Second)
	for w.State() != StatePaused {
		select {
		case <-deadline:
			t.Fatalf("worker did not pause, state=%v", w.State())
		case <-time.After(time.Millisecond):
		}
	}

	ticksAtPause := func() int {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.ticks
	}()
	time.Sleep(20 * time.Millisecond)
	ticksStillAtPause := func() int {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.ticks
	}()
	if ticksStillAtPause != ticksAtPause {
		t.Errorf("ticks advanced while paused: %d -> %d", ticksAtPause, ticksStillAtPause)
	}

	w.Unpause()
	deadline = time.After(time.Second)
	for w.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatalf("worker did not resume, state=%v", w.State())
		case <-time.After(time.Millisecond):
		}
	}

	w.SendInterrupt()
	w.FinishInterrupt()

	if w.State() != StateInterrupted {
		t.Errorf("State() = %v, want interrupted", w.State())
	}
	runner.mu.Lock()
	if !runner.cleared || !runner.interrupted {
		t.Errorf("expected OnClear(interrupted=true), got cleared=%v interrupted=%v", runner.cleared, runner.interrupted)
	}
	runner.mu.Unlock()
}

func TestWorkerStopDeletesThread(t *testing.T) {
	fs := &fakeStore{}
	runner := &countingRunner{maxTicks: 1}
	w, err := New(fs, store.ModuleCrawler, store.ThreadOptions{}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	w.Stop()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.deleted {
		t.Errorf("DeleteThread was not called by Stop")
	}
}
