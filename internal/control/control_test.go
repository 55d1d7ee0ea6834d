package control

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/crawlserv/crawlservpp-sub001/internal/config"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/supervisor"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("SET SESSION innodb_lock_wait_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	sup, err := supervisor.New(store.OpenFromPool(db), log.New(io.Discard, "", 0), 0, 0)
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	sup.SetServerAllow([]string{"*"})

	mock.ExpectExec("SET SESSION innodb_lock_wait_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	handle, err := store.NewHandleFromPool(db, "control")
	if err != nil {
		t.Fatalf("NewHandleFromPool: %v", err)
	}

	return New(sup, handle, config.Server{}), mock
}

func postJSON(t *testing.T, s *Server, body any) Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(raw)))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestOptionsReturnsCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestGetReturnsStatusText(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "no active workers") {
		t.Errorf("body = %q, want mention of no active workers", w.Body.String())
	}
}

func TestUnrecognisedCommandFails(t *testing.T) {
	s, _ := newTestServer(t)
	resp := postJSON(t, s, map[string]any{"cmd": "not-a-real-command"})
	if !resp.Fail {
		t.Errorf("expected fail=true for an unrecognised command, got %+v", resp)
	}
}

func TestDestructiveCommandRequiresConfirmation(t *testing.T) {
	s, _ := newTestServer(t)
	resp := postJSON(t, s, map[string]any{"cmd": "clearlogs"})
	if !resp.Confirm {
		t.Errorf("expected confirm=true before a destructive command runs, got %+v", resp)
	}
}

func TestClearLogsRespectsServerLogsDeletable(t *testing.T) {
	s, _ := newTestServer(t)
	resp := postJSON(t, s, map[string]any{"cmd": "clearlogs", "confirmed": true})
	if !resp.Fail {
		t.Errorf("expected clearlogs to fail when server_logs_deletable is false, got %+v", resp)
	}
}

func TestAddWebsiteInsertsAndReturnsID(t *testing.T) {
	s, mock := newTestServer(t)
	mock.ExpectExec("INSERT INTO websites").
		WithArgs("Example", "example_com", "example.com").
		WillReturnResult(sqlmock.NewResult(3, 1))

	resp := postJSON(t, s, map[string]any{
		"cmd": "addwebsite", "name": "Example", "namespace": "example_com", "domain": "example.com",
	})
	if resp.Fail {
		t.Fatalf("addwebsite failed: %s", resp.Text)
	}
	if resp.ID != 3 {
		t.Errorf("ID = %d, want 3", resp.ID)
	}
}

func TestForbiddenWhenRemoteNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	s.sup.SetServerAllow(nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"cmd":"log"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestModuleCommandsAreRegistered(t *testing.T) {
	for _, name := range []string{"startcrawler", "startparser", "startextractor", "startanalyzer", "pausecrawler", "unpausecrawler", "stopcrawler"} {
		if _, ok := commands[name]; !ok {
			t.Errorf("command %q not registered", name)
		}
	}
}
