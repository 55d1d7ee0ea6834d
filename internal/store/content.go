package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertCrawledContent writes one CrawledContent row (spec §3, §4.5.3).
// CrawledContent rows are written only after a successful
// select→fetch→filter sequence for (url, archived-timestamp); the caller
// must have already re-confirmed the lease via CheckLock before calling
// this (spec §3 invariant).
func (h *Handle) InsertCrawledContent(urlList uint64, c CrawledContent) (id uint64, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return 0, err
	}
	crawlTime := c.CrawlTime
	if crawlTime.IsZero() {
		crawlTime = time.Now()
	}
	err = h.withRetry(func() error {
		res, execErr := h.conn.ExecContext(context.Background(), fmt.Sprintf(
			"INSERT INTO `%s` (url, crawl_time, archived, response_code, content_type, content) VALUES (?, ?, ?, ?, ?, ?)",
			tables.crawledTable),
			c.UrlID, crawlTime, c.Archived, c.ResponseCode, c.ContentType, c.Content)
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

// HasArchivedContent reports whether a CrawledContent row already exists
// for (urlID, crawlTime), used before fetching a memento to avoid
// re-fetching an already-archived version (spec §4.5.5).
func (h *Handle) HasArchivedContent(urlList, urlID uint64, crawlTime time.Time) (bool, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return false, err
	}
	var exists bool
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT EXISTS(SELECT 1 FROM `%s` WHERE url = ? AND archived = 1 AND crawl_time = ?)",
			tables.crawledTable), urlID, crawlTime)
		return row.Scan(&exists)
	})
	return exists, err
}

// CountLiveContent returns the number of non-archived CrawledContent rows
// for urlID; used to enforce the "count(...) <= 1 when crawler.recrawl is
// false" testable property of spec §8.
func (h *Handle) CountLiveContent(urlList, urlID uint64) (int, error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return 0, err
	}
	var n int
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT COUNT(*) FROM `%s` WHERE url = ? AND archived = 0", tables.crawledTable), urlID)
		return row.Scan(&n)
	})
	return n, err
}

// GetLatestContent returns the most recently crawled, non-archived content
// for urlID, used by the parser/extractor modules to obtain the body their
// queries run against (spec §4.1's shared URL lifecycle; body content is
// otherwise opaque to the Store).
func (h *Handle) GetLatestContent(urlList, urlID uint64) (c CrawledContent, found bool, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return CrawledContent{}, false, err
	}
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT id, url, crawl_time, archived, response_code, content_type, content FROM `%s` "+
				"WHERE url = ? AND archived = 0 ORDER BY crawl_time DESC LIMIT 1", tables.crawledTable),
			urlID)
		scanErr := row.Scan(&c.ID, &c.UrlID, &c.CrawlTime, &c.Archived, &c.ResponseCode, &c.ContentType, &c.Content)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	return c, found, err
}

// GetCorpus concatenates every non-archived CrawledContent body in urlList,
// separated by a space, for the analyzer's corpus-building step
// (`Module/Analyzer/Algo/MarkovText.cpp`'s `getCorpus`, which reads whole
// input tables rather than cycling one URL at a time through the lease
// protocol — the analyzer's batch read is the one module operation that
// legitimately bypasses per-URL selection).
func (h *Handle) GetCorpus(urlList uint64) (corpus string, sources int, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return "", 0, err
	}
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(), fmt.Sprintf(
			"SELECT content FROM `%s` WHERE archived = 0", tables.crawledTable))
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		var b []byte
		sources = 0
		for rows.Next() {
			var content []byte
			if scanErr := rows.Scan(&content); scanErr != nil {
				return scanErr
			}
			b = append(b, content...)
			b = append(b, ' ')
			sources++
		}
		corpus = string(b)
		return rows.Err()
	})
	return corpus, sources, err
}

// InsertLinkBatch inserts every (from,to) pair in links as a Link row with
// the given archived flag, skipping pairs that already exist, batched
// under one short table lock per call (spec §4.5.4 step 5: "batched every
// 500 URLs to bound lock duration" — the caller is responsible for
// chunking its calls to that size).
func (h *Handle) InsertLinkBatch(urlList uint64, from uint64, to []uint64, archived bool) (inserted int, err error) {
	tables, err := h.urlListTableNames(urlList)
	if err != nil {
		return 0, err
	}
	err = h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		for _, toID := range to {
			res, execErr := tx.ExecContext(context.Background(), fmt.Sprintf(
				"INSERT IGNORE INTO `%s` (from_url, to_url, archived) VALUES (?, ?, ?)",
				tables.linksTable), from, toID, archived)
			if execErr != nil {
				return execErr
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return tx.Commit()
	})
	return inserted, err
}
