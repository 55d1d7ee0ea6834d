package supervisor

import (
	"io"
	"log"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mock.ExpectExec("SET SESSION innodb_lock_wait_timeout").WillReturnResult(sqlmock.NewResult(0, 0))

	sup, err := New(store.OpenFromPool(db), log.New(io.Discard, "", 0), 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup
}

func TestAllowListRoundTrips(t *testing.T) {
	sup := newTestSupervisor(t)
	sup.SetServerAllow([]string{"10.0.0.1", "10.0.0.2"})

	got := sup.AllowList()
	if len(got) != 2 || got[0] != "10.0.0.1" || got[1] != "10.0.0.2" {
		t.Errorf("AllowList() = %v, want [10.0.0.1 10.0.0.2]", got)
	}
}

func TestAllowListReturnsADefensiveCopy(t *testing.T) {
	sup := newTestSupervisor(t)
	sup.SetServerAllow([]string{"10.0.0.1"})

	got := sup.AllowList()
	got[0] = "mutated"

	if want := []string{"10.0.0.1"}; sup.AllowList()[0] != want[0] {
		t.Errorf("internal allow list was mutated via the returned slice: %v", sup.AllowList())
	}
}

func TestAllowedWildcard(t *testing.T) {
	sup := newTestSupervisor(t)
	sup.SetServerAllow([]string{"*"})
	if !sup.Allowed("203.0.113.5") {
		t.Error("Allowed(203.0.113.5) = false, want true for a wildcard allow list")
	}
}

func TestAllowedRejectsUnlistedIP(t *testing.T) {
	sup := newTestSupervisor(t)
	sup.SetServerAllow([]string{"10.0.0.1"})
	if sup.Allowed("10.0.0.2") {
		t.Error("Allowed(10.0.0.2) = true, want false when not in the allow list")
	}
}

func TestStatusEmptyWhenNoWorkersTracked(t *testing.T) {
	sup := newTestSupervisor(t)
	if got := sup.Status(); len(got) != 0 {
		t.Errorf("Status() = %v, want empty", got)
	}
}

func TestStartWorkerFailsWithoutRegisteredFactory(t *testing.T) {
	sup := newTestSupervisor(t)
	if _, err := sup.StartWorker(store.ModuleCrawler, store.ThreadOptions{}); err == nil {
		t.Error("StartWorker with no registered factory returned nil error, want an error")
	}
}

func TestPauseUnpauseStopUnknownWorkerFail(t *testing.T) {
	sup := newTestSupervisor(t)
	if err := sup.Pause(999); err == nil {
		t.Error("Pause(999) returned nil error for an unknown worker, want an error")
	}
	if err := sup.Unpause(999); err == nil {
		t.Error("Unpause(999) returned nil error for an unknown worker, want an error")
	}
	if err := sup.Stop(999); err == nil {
		t.Error("Stop(999) returned nil error for an unknown worker, want an error")
	}
}
