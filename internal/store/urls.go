package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"
)

// urlHash computes the non-unique existence-check hash for a URL string
// (spec §3 "hash column"): a simple, fast, non-cryptographic hash is
// sufficient since it only accelerates existence probes, the url column
// itself remains the source of truth.
func urlHash(u string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(u))
	return h.Sum64()
}

// InsertURL inserts u into the URL table of urlList if no row with the
// same hash and exact URL string already exists. The caller is expected
// to have already rejected URLs over urix.MaxURLBytes and logged the
// warning (spec §3).
func (h *Handle) InsertURL(urlList uint64, rawURL string, manual bool) (id uint64, inserted bool, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return 0, false, err
	}
	err = h.withRetry(func() error {
		hashVal := urlHash(rawURL)
		var existingID uint64
		row := h.conn.QueryRowContext(context.Background(),
			fmt.Sprintf("SELECT id FROM `%s` WHERE hash = ? AND url = ? LIMIT 1", tables.urlTable),
			hashVal, rawURL)
		switch scanErr := row.Scan(&existingID); scanErr {
		case nil:
			id = existingID
			inserted = false
			return nil
		case sql.ErrNoRows:
			res, execErr := h.conn.ExecContext(context.Background(),
				fmt.Sprintf("INSERT INTO `%s` (url, hash, manual) VALUES (?, ?, ?)", tables.urlTable),
				rawURL, hashVal, manual)
			if execErr != nil {
				return execErr
			}
			lastID, idErr := res.LastInsertId()
			if idErr != nil {
				return idErr
			}
			id = uint64(lastID)
			inserted = true
			return nil
		default:
			return scanErr
		}
	})
	return id, inserted, err
}

// CountURLs returns the total number of URL rows in urlList, used as the
// `total_at_start` denominator of the monotone progress counter recommended
// by spec §9 ("processed / max(total_at_start, processed)").
func (h *Handle) CountURLs(urlList uint64) (int, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return 0, err
	}
	var n int
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM `%s`", tables.urlTable))
		return row.Scan(&n)
	})
	return n, err
}

// NextURL scans, under a table lock, for the lowest id > afterLastID not
// yet finished for module in urlList (spec §4.1 item 1). Returns found =
// false when there is nothing left to do, in which case the caller idles.
func (h *Handle) NextURL(urlList uint64, module Module, afterLastID uint64) (u Url, found bool, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return Url{}, false, err
	}
	col := finishedColumn(module)
	err = h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		// Table-level write lock for the minimum selection window (spec §5).
		if _, lockErr := tx.ExecContext(context.Background(),
			fmt.Sprintf("SELECT id FROM `%s` WHERE id > 0 LIMIT 1 FOR UPDATE", tables.urlTable)); lockErr != nil {
			return lockErr
		}

		row := tx.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT id, url, hash, manual FROM `%s` WHERE id > ? AND %s = 0 ORDER BY id ASC LIMIT 1",
			tables.urlTable, col), afterLastID)
		switch scanErr := row.Scan(&u.ID, &u.URL, &u.Hash, &u.Manual); scanErr {
		case nil:
			u.UrlList = urlList
			found = true
			return tx.Commit()
		case sql.ErrNoRows:
			found = false
			return tx.Commit()
		default:
			return scanErr
		}
	})
	return u, found, err
}

// IsLockable reports whether module's lock field on urlID is null or in
// the past (spec §4.1 item 2).
func (h *Handle) IsLockable(urlList, urlID uint64, module Module) (bool, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return false, err
	}
	col := lockColumn(module)
	var lockable bool
	err = h.withRetry(func() error {
		var lockVal sql.NullTime
		row := h.conn.QueryRowContext(context.Background(),
			fmt.Sprintf("SELECT %s FROM `%s` WHERE id = ?", col, tables.urlTable), urlID)
		if scanErr := row.Scan(&lockVal); scanErr != nil {
			return scanErr
		}
		var lockPtr *time.Time
		if lockVal.Valid {
			lockPtr = &lockVal.Time
		}
		lockable = IsLockableAt(lockPtr, time.Now())
		return nil
	})
	return lockable, err
}

// Lock sets module's lock field on urlID to now+ttl and returns the exact
// expiry written (spec §4.1 item 3); the caller must remember it for
// CheckLock/Release/MarkFinished.
func (h *Handle) Lock(urlList, urlID uint64, module Module, ttl time.Duration) (time.Time, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return time.Time{}, err
	}
	col := lockColumn(module)
	expiry := time.Now().Add(ttl)
	err = h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			fmt.Sprintf("UPDATE `%s` SET %s = ? WHERE id = ?", tables.urlTable, col), expiry, urlID)
		return execErr
	})
	return expiry, err
}

// CheckLock reports whether the stored lock on urlID still equals
// lockTime (spec §4.1 item 4). Must be called before any write targeting
// this URL; a false result means the lease was lost and the caller must
// abandon the URL without writing.
func (h *Handle) CheckLock(urlList, urlID uint64, module Module, lockTime time.Time) (bool, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return false, err
	}
	col := lockColumn(module)
	var ok bool
	err = h.withRetry(func() error {
		var stored sql.NullTime
		row := h.conn.QueryRowContext(context.Background(),
			fmt.Sprintf("SELECT %s FROM `%s` WHERE id = ?", col, tables.urlTable), urlID)
		if scanErr := row.Scan(&stored); scanErr != nil {
			return scanErr
		}
		ok = stored.Valid && stored.Time.Equal(lockTime)
		return nil
	})
	return ok, err
}

// Release clears module's lock field on urlID iff the current holder
// still matches lockTime (spec §4.1 item 5, check-then-act).
func (h *Handle) Release(urlList, urlID uint64, module Module, lockTime time.Time) error {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return err
	}
	col := lockColumn(module)
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			fmt.Sprintf("UPDATE `%s` SET %s = NULL WHERE id = ? AND %s = ?", tables.urlTable, col, col),
			urlID, lockTime)
		return execErr
	})
}

// MarkFinished sets module's completion flag on urlID under the same
// check-then-act discipline as Release (spec §4.1 item 6).
func (h *Handle) MarkFinished(urlList, urlID uint64, module Module, lockTime time.Time) error {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return err
	}
	lockCol := lockColumn(module)
	finCol := finishedColumn(module)
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			fmt.Sprintf("UPDATE `%s` SET %s = 1 WHERE id = ? AND %s = ?", tables.urlTable, finCol, lockCol),
			urlID, lockTime)
		return execErr
	})
}

// ReleaseAllLocks clears every lock field this Handle's module might still
// hold in urlList; called from a Worker's onClear to guarantee no lease is
// ever left dangling past process exit (spec §4.4, §5).
func (h *Handle) ReleaseAllLocks(urlList uint64, module Module) error {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return err
	}
	col := lockColumn(module)
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			fmt.Sprintf("UPDATE `%s` SET %s = NULL WHERE %s IS NOT NULL", tables.urlTable, col, col))
		return execErr
	})
}
