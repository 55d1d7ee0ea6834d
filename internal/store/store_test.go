package store

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockHandle(t *testing.T) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("SET SESSION innodb_lock_wait_timeout").WillReturnResult(sqlmock.NewResult(0, 0))

	st := &Store{
		settings: Settings{LockWait: 10 * time.Minute, SleepOnError: time.Millisecond},
		pool:     db,
		logger:   log.New(io.Discard, "", 0),
	}
	h, err := st.NewHandle("test")
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return h, mock
}

func TestAddWebsiteInsertsAndReturnsID(t *testing.T) {
	h, mock := newMockHandle(t)
	mock.ExpectExec("INSERT INTO websites").
		WithArgs("Example", "example_com", "example.com").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := h.AddWebsite(Website{Name: "Example", Namespace: "example_com", Domain: "example.com"})
	if err != nil {
		t.Fatalf("AddWebsite: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAddWebsiteRejectsInvalidNamespace(t *testing.T) {
	h, _ := newMockHandle(t)
	_, err := h.AddWebsite(Website{Name: "Example", Namespace: "a", Domain: "example.com"})
	if err == nil {
		t.Fatalf("AddWebsite with 1-char namespace: want error, got nil")
	}
}

func TestLockWritesExpiryAndReturnsIt(t *testing.T) {
	h, mock := newMockHandle(t)
	mock.ExpectQuery("SELECT w.namespace, u.namespace").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"namespace", "namespace"}).AddRow("example_com", "main"))
	mock.ExpectExec("UPDATE `example_com_main` SET crawl_lock").
		WillReturnResult(sqlmock.NewResult(0, 1))

	before := time.Now()
	expiry, err := h.Lock(1, 42, ModuleCrawler, 5*time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if expiry.Before(before.Add(5 * time.Minute)) {
		t.Errorf("expiry = %v, want >= %v", expiry, before.Add(5*time.Minute))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteWebsiteResetsAutoIncrementWhenEmpty(t *testing.T) {
	h, mock := newMockHandle(t)

	mock.ExpectExec("DELETE FROM websites").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("ALTER TABLE `websites` AUTO_INCREMENT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := h.DeleteWebsite(9, nil, nil); err != nil {
		t.Fatalf("DeleteWebsite: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
