package store

import (
	"context"
	"fmt"
)

// ListUrlListsByWebsite fetches every UrlList belonging to websiteID, used
// by the control endpoint's deletewebsite/duplicatewebsite cascades (spec
// §4.1 "Cascading deletes").
func (h *Handle) ListUrlListsByWebsite(websiteID uint64) (out []UrlList, err error) {
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(),
			"SELECT id, website, name, namespace FROM urllists WHERE website = ?", websiteID)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var ul UrlList
			if scanErr := rows.Scan(&ul.ID, &ul.WebsiteID, &ul.Name, &ul.Namespace); scanErr != nil {
				return scanErr
			}
			out = append(out, ul)
		}
		return rows.Err()
	})
	return out, err
}

// AddUrlList creates a UrlList row and materialises its three physical
// tables (URL, crawled-content, link) in one transaction (spec §3:
// "Creation materialises three physical tables"). Namespace "config" is
// reserved.
func (h *Handle) AddUrlList(ul UrlList) (id uint64, err error) {
	if !ValidNamespace(ul.Namespace) {
		return 0, fmt.Errorf("store: invalid url list namespace %q", ul.Namespace)
	}
	if ul.Namespace == ReservedUrlListNamespace {
		return 0, fmt.Errorf("store: namespace %q is reserved", ReservedUrlListNamespace)
	}
	websiteNS, err := h.WebsiteNamespace(ul.WebsiteID)
	if err != nil {
		return 0, fmt.Errorf("store: resolving website namespace: %w", err)
	}

	err = h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		res, execErr := tx.ExecContext(context.Background(),
			"INSERT INTO urllists (website, name, namespace) VALUES (?, ?, ?)",
			ul.WebsiteID, ul.Name, ul.Namespace)
		if execErr != nil {
			return execErr
		}
		lastID, idErr := res.LastInsertId()
		if idErr != nil {
			return idErr
		}
		id = uint64(lastID)

		urlTable := UrlListTableName(websiteNS, ul.Namespace)
		crawledTable := CrawledTableName(websiteNS, ul.Namespace)
		linksTable := LinksTableName(websiteNS, ul.Namespace)

		if _, execErr = tx.ExecContext(context.Background(), fmt.Sprintf(`
			CREATE TABLE `+"`%s`"+` (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				url VARCHAR(2000) NOT NULL,
				hash BIGINT UNSIGNED NOT NULL,
				manual BOOLEAN NOT NULL DEFAULT FALSE,
				crawled BOOLEAN NOT NULL DEFAULT FALSE,
				parsed BOOLEAN NOT NULL DEFAULT FALSE,
				extracted BOOLEAN NOT NULL DEFAULT FALSE,
				analyzed BOOLEAN NOT NULL DEFAULT FALSE,
				crawl_lock DATETIME NULL,
				parse_lock DATETIME NULL,
				extract_lock DATETIME NULL,
				analyze_lock DATETIME NULL,
				INDEX (hash)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			urlTable)); execErr != nil {
			return execErr
		}

		if _, execErr = tx.ExecContext(context.Background(), fmt.Sprintf(`
			CREATE TABLE `+"`%s`"+` (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				url BIGINT UNSIGNED NOT NULL,
				crawl_time DATETIME NOT NULL,
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				response_code SMALLINT UNSIGNED NOT NULL,
				content_type VARCHAR(255) NOT NULL,
				content LONGBLOB NOT NULL ROW_FORMAT=COMPRESSED
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			crawledTable)); execErr != nil {
			return execErr
		}

		if _, execErr = tx.ExecContext(context.Background(), fmt.Sprintf(`
			CREATE TABLE `+"`%s`"+` (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				from_url BIGINT UNSIGNED NOT NULL,
				to_url BIGINT UNSIGNED NOT NULL,
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				UNIQUE KEY uniq_link (from_url, to_url, archived)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			linksTable)); execErr != nil {
			return execErr
		}

		return tx.Commit()
	})
	return id, err
}

// DeleteUrlList drops `_links`, `_crawled`, every derived table, then the
// URL table itself, and only then deletes the parent row, resetting
// auto-increment iff the parent table becomes empty (spec §4.1).
func (h *Handle) DeleteUrlList(ul UrlList, derived []DerivedTable) error {
	websiteNS, err := h.WebsiteNamespace(ul.WebsiteID)
	if err != nil {
		return fmt.Errorf("store: resolving website namespace: %w", err)
	}
	names := ChildTableNames(websiteNS, ul.Namespace, derived)

	return h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		for _, name := range names {
			if _, execErr := tx.ExecContext(context.Background(),
				fmt.Sprintf("DROP TABLE IF EXISTS `%s`", name)); execErr != nil {
				return execErr
			}
		}
		if _, execErr := tx.ExecContext(context.Background(),
			"DELETE FROM urllists WHERE id = ?", ul.ID); execErr != nil {
			return execErr
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}
		h.invalidateTableNames(ul.ID)
		return h.resetAutoIncrementIfEmpty("urllists")
	})
}

// UpdateUrlList updates name for urlList id (spec §6 "updateurllist").
// Namespace changes go through RenameUrlListNamespace instead, since a
// namespace rename also renames this URL list's physical tables.
func (h *Handle) UpdateUrlList(id uint64, name string) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE urllists SET name = ? WHERE id = ?", name, id)
		return execErr
	})
}

// GetUrlList fetches one url list by id.
func (h *Handle) GetUrlList(id uint64) (ul UrlList, err error) {
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(),
			"SELECT id, website, name, namespace FROM urllists WHERE id = ?", id)
		return row.Scan(&ul.ID, &ul.WebsiteID, &ul.Name, &ul.Namespace)
	})
	return ul, err
}
