// Package store implements the shared, thread-safe persistence layer
// described in spec §3/§4.1: websites, URL lists, queries, configurations,
// thread lifecycle records, and the per-URL-list URL/content/link tables,
// including the lease-based URL selection protocol.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Settings are the connection parameters read once at startup from the
// `db_*` configuration keys (spec §6).
type Settings struct {
	Host          string
	Port          uint16
	User          string
	Password      string
	Name          string
	SleepOnError  time.Duration
	LockWait      time.Duration // session-level lock wait, spec §5 "10-minute session lock wait"
}

// DSN builds the go-sql-driver/mysql data source name for these settings.
func (s Settings) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_unicode_ci&parseTime=true&loc=UTC",
		s.User, s.Password, s.Host, s.Port, s.Name,
	)
}

// Store is the process-wide entry point to the persistence layer; it owns
// a connection pool and hands out per-owner Handles (spec §4.1 "Connection
// discipline": each Worker owns one Store handle, its own connection; the
// Supervisor owns one).
type Store struct {
	settings Settings
	pool     *sql.DB
	logger   *log.Logger
}

// Open connects the shared pool and applies the session lock wait.
func Open(settings Settings) (*Store, error) {
	pool, err := sql.Open("mysql", settings.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	return &Store{
		settings: settings,
		pool:     pool,
		logger:   log.New(os.Stderr, "store: ", log.LstdFlags),
	}, nil
}

// Close disposes of the shared pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// OpenFromPool builds a Store directly from an already-open *sql.DB, the
// Store-level equivalent of NewHandleFromPool below, for tests that need a
// Supervisor (which owns its own Handle via Store.NewHandle internally).
func OpenFromPool(pool *sql.DB) *Store {
	return &Store{
		settings: Settings{LockWait: 10 * time.Minute, SleepOnError: time.Millisecond},
		pool:     pool,
		logger:   log.New(io.Discard, "", 0),
	}
}

// NewHandleFromPool builds a Handle directly from an already-open *sql.DB,
// bypassing Open's driver dial. It exists for other packages' tests that
// need a real Handle wired to a sqlmock.Sqlmock connection (internal/store's
// own tests construct this internally via newMockHandle; this is the
// exported equivalent for internal/crawler, internal/parser,
// internal/extractor, internal/analyzer and internal/control tests).
func NewHandleFromPool(pool *sql.DB, owner string) (*Handle, error) {
	st := &Store{
		settings: Settings{LockWait: 10 * time.Minute, SleepOnError: time.Millisecond},
		pool:     pool,
		logger:   log.New(io.Discard, "", 0),
	}
	return st.NewHandle(owner)
}

// stmtKey names a prepared statement so it can be re-prepared after a
// reconnect without the caller having to remember its SQL text.
type stmtKey string

// Handle is one owner's (a Worker's or the Supervisor's) dedicated
// connection plus its reusable set of prepared statements (spec §4.1).
// On any driver error the Handle tests connection validity, attempts
// reconnect, and on failure waits SleepOnError then retries once more; on
// success every prepared statement is re-prepared before resuming work.
type Handle struct {
	store *Store
	owner string

	mutex sync.Mutex
	conn  *sql.Conn
	stmts map[stmtKey]*sql.Stmt
	texts map[stmtKey]string

	tableNameMutex sync.RWMutex
	tableNames     map[uint64]urlListTables

	logger *log.Logger
}

// urlListTables caches the physical table names derived from a URL list's
// (and its website's) namespace, so hot-path lease calls don't re-join
// `urllists`/`websites` on every call (spec §6 naming scheme).
type urlListTables struct {
	urlTable     string
	crawledTable string
	linksTable   string
}

// urlListTableNames resolves and caches the physical table names for
// urlListID, invalidated by RenameWebsiteNamespace/RenameUrlListNamespace.
func (h *Handle) urlListTableNames(urlListID uint64) (urlListTables, error) {
	h.tableNameMutex.RLock()
	if t, ok := h.tableNames[urlListID]; ok {
		h.tableNameMutex.RUnlock()
		return t, nil
	}
	h.tableNameMutex.RUnlock()

	var websiteNS, urlListNS string
	err := h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), `
			SELECT w.namespace, u.namespace
			FROM urllists u JOIN websites w ON u.website = w.id
			WHERE u.id = ?`, urlListID)
		return row.Scan(&websiteNS, &urlListNS)
	})
	if err != nil {
		return urlListTables{}, fmt.Errorf("store[%s]: resolving table names for url list %d: %w", h.owner, urlListID, err)
	}

	t := urlListTables{
		urlTable:     UrlListTableName(websiteNS, urlListNS),
		crawledTable: CrawledTableName(websiteNS, urlListNS),
		linksTable:   LinksTableName(websiteNS, urlListNS),
	}
	h.tableNameMutex.Lock()
	h.tableNames[urlListID] = t
	h.tableNameMutex.Unlock()
	return t, nil
}

// invalidateTableNames drops cached physical table names, called after a
// namespace rename affecting urlListID.
func (h *Handle) invalidateTableNames(urlListID uint64) {
	h.tableNameMutex.Lock()
	delete(h.tableNames, urlListID)
	h.tableNameMutex.Unlock()
}

// NewHandle acquires a dedicated connection from the pool for owner
// (a Worker id string, or "supervisor").
func (s *Store) NewHandle(owner string) (*Handle, error) {
	conn, err := s.pool.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("store: acquiring connection for %s: %w", owner, err)
	}
	if _, err := conn.ExecContext(context.Background(), fmt.Sprintf(
		"SET SESSION innodb_lock_wait_timeout = %d", int(s.settings.LockWait.Seconds()),
	)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: setting lock wait for %s: %w", owner, err)
	}
	return &Handle{
		store:      s,
		owner:      owner,
		conn:       conn,
		stmts:      make(map[stmtKey]*sql.Stmt),
		texts:      make(map[stmtKey]string),
		tableNames: make(map[uint64]urlListTables),
		logger:     log.New(os.Stderr, fmt.Sprintf("store[%s]: ", owner), log.LstdFlags),
	}, nil
}

// Close releases the Handle's dedicated connection back to the pool.
func (h *Handle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, stmt := range h.stmts {
		stmt.Close()
	}
	return h.conn.Close()
}

// prepare registers (or reuses) a prepared statement under key.
func (h *Handle) prepare(key stmtKey, query string) (*sql.Stmt, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stmt, ok := h.stmts[key]; ok {
		return stmt, nil
	}
	stmt, err := h.conn.PrepareContext(context.Background(), query)
	if err != nil {
		return nil, err
	}
	h.stmts[key] = stmt
	h.texts[key] = query
	return stmt, nil
}

// reconnectAndReprepare implements the reconnect-on-error discipline of
// spec §4.1: test validity, reconnect, wait SleepOnError and retry once
// more on failure, then re-prepare every statement. Failure to reconnect
// is fatal to the owning Worker (the error is returned to the module, and a
// Worker whose OnInit/OnTick returns an error terminates).
func (h *Handle) reconnectAndReprepare() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.conn.PingContext(context.Background()); err == nil {
		return nil // connection is still valid, nothing to do
	}

	h.conn.Close()
	conn, err := h.store.pool.Conn(context.Background())
	if err != nil {
		time.Sleep(h.store.settings.SleepOnError)
		conn, err = h.store.pool.Conn(context.Background())
		if err != nil {
			return fmt.Errorf("store[%s]: reconnect failed: %w", h.owner, err)
		}
	}
	h.conn = conn

	for key, stmt := range h.stmts {
		stmt.Close()
		newStmt, err := h.conn.PrepareContext(context.Background(), h.texts[key])
		if err != nil {
			return fmt.Errorf("store[%s]: re-preparing %q: %w", h.owner, key, err)
		}
		h.stmts[key] = newStmt
	}
	return nil
}

// withRetry runs op, and on any error attempts reconnectAndReprepare
// followed by one more attempt of op, matching the "one retry after
// reconnect" contract of spec §4.1.
func (h *Handle) withRetry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if recErr := h.reconnectAndReprepare(); recErr != nil {
		return fmt.Errorf("store[%s]: %w (after failed reconnect: %v)", h.owner, err, recErr)
	}
	return op()
}
