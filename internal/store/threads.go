package store

import "context"

// AddThread inserts a new Thread row; a row existing iff the Worker is (or
// is to be) running is the invariant that ties Thread rows to live workers
// (spec §3).
func (h *Handle) AddThread(t Thread) (id uint64, err error) {
	err = h.withRetry(func() error {
		res, execErr := h.conn.ExecContext(context.Background(), `
			INSERT INTO threads
				(module, status_message, paused, progress, last_id, run_time_s, pause_time_s,
				 opt_website, opt_url_list, opt_config)
			VALUES (?, '', 0, 0, 0, 0, 0, ?, ?, ?)`,
			t.Module, t.Options.Website, t.Options.UrlList, t.Options.Config)
		if execErr != nil {
			return execErr
		}
		lastID, idErr := res.LastInsertId()
		if idErr != nil {
			return idErr
		}
		id = uint64(lastID)
		return nil
	})
	return id, err
}

// GetThreads returns every Thread row, used at startup to resurrect
// surviving workers (spec §3 "on process start, every Thread row ... is
// resurrected").
func (h *Handle) GetThreads() (threads []Thread, err error) {
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(), `
			SELECT id, module, status_message, paused, progress, last_id, run_time_s, pause_time_s,
			       opt_website, opt_url_list, opt_config
			FROM threads`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		for rows.Next() {
			var t Thread
			if scanErr := rows.Scan(&t.ID, &t.Module, &t.StatusMessage, &t.Paused, &t.Progress, &t.LastID,
				&t.RunTimeS, &t.PauseTimeS, &t.Options.Website, &t.Options.UrlList, &t.Options.Config); scanErr != nil {
				return scanErr
			}
			threads = append(threads, t)
		}
		return rows.Err()
	})
	return threads, err
}

// SetThreadStatus updates a thread's paused flag and status message.
func (h *Handle) SetThreadStatus(id uint64, paused bool, message string) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE threads SET paused = ?, status_message = ? WHERE id = ?", paused, message, id)
		return execErr
	})
}

// SetThreadProgress updates a thread's progress fraction (0..1).
func (h *Handle) SetThreadProgress(id uint64, progress float32) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE threads SET progress = ? WHERE id = ?", progress, id)
		return execErr
	})
}

// SetThreadLast updates a thread's resume cursor.
func (h *Handle) SetThreadLast(id uint64, last uint64) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE threads SET last_id = ? WHERE id = ?", last, id)
		return execErr
	})
}

// SetThreadRunTime persists accumulated run time in seconds.
func (h *Handle) SetThreadRunTime(id uint64, seconds uint64) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE threads SET run_time_s = ? WHERE id = ?", seconds, id)
		return execErr
	})
}

// SetThreadPauseTime persists accumulated pause time in seconds.
func (h *Handle) SetThreadPauseTime(id uint64, seconds uint64) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE threads SET pause_time_s = ? WHERE id = ?", seconds, id)
		return execErr
	})
}

// GetThreadRunTime / GetThreadPauseTime are read back on resurrection so
// totals survive restarts (spec §4.4 "Timing").
func (h *Handle) GetThreadRunTime(id uint64) (seconds uint64, err error) {
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), "SELECT run_time_s FROM threads WHERE id = ?", id)
		return row.Scan(&seconds)
	})
	return seconds, err
}

func (h *Handle) GetThreadPauseTime(id uint64) (seconds uint64, err error) {
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), "SELECT pause_time_s FROM threads WHERE id = ?", id)
		return row.Scan(&seconds)
	})
	return seconds, err
}

// DeleteThread removes a thread row; deletion terminates the Worker per
// the invariant in spec §3, and resets auto-increment iff the table
// becomes empty.
func (h *Handle) DeleteThread(id uint64) error {
	return h.withRetry(func() error {
		if _, execErr := h.conn.ExecContext(context.Background(), "DELETE FROM threads WHERE id = ?", id); execErr != nil {
			return execErr
		}
		return h.resetAutoIncrementIfEmpty("threads")
	})
}
