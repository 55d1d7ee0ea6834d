package store

import "context"

// Log appends one entry to the global log table (spec §3, "append-only").
func (h *Handle) Log(module Module, entry string) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"INSERT INTO log (module, entry, timestamp) VALUES (?, ?, NOW())", module, entry)
		return execErr
	})
}

// ClearLogs truncates the log table (spec §6 "clearlogs"), only reachable
// when the control endpoint's `server_logs_deletable` setting allows it.
func (h *Handle) ClearLogs() error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(), "TRUNCATE TABLE log")
		return execErr
	})
}

// RecentLogs returns the last n log entries, newest first, used by the
// control endpoint's `log` command.
func (h *Handle) RecentLogs(n int) (entries []LogEntry, err error) {
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(),
			"SELECT id, module, entry, timestamp FROM log ORDER BY id DESC LIMIT ?", n)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		for rows.Next() {
			var e LogEntry
			if scanErr := rows.Scan(&e.ID, &e.Module, &e.Entry, &e.Timestamp); scanErr != nil {
				return scanErr
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}
