package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddWebsite creates a website row (spec §3, §6 "addwebsite").
func (h *Handle) AddWebsite(w Website) (id uint64, err error) {
	if !ValidNamespace(w.Namespace) {
		return 0, fmt.Errorf("store: invalid website namespace %q", w.Namespace)
	}
	err = h.withRetry(func() error {
		res, execErr := h.conn.ExecContext(context.Background(),
			"INSERT INTO websites (name, namespace, domain) VALUES (?, ?, ?)",
			w.Name, w.Namespace, w.Domain)
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

// GetWebsite fetches one website by id.
func (h *Handle) GetWebsite(id uint64) (w Website, err error) {
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(),
			"SELECT id, name, namespace, domain FROM websites WHERE id = ?", id)
		return row.Scan(&w.ID, &w.Name, &w.Namespace, &w.Domain)
	})
	return w, err
}

// UpdateWebsite updates name/domain for website id (spec §6 "updatewebsite").
// Namespace changes go through RenameWebsiteNamespace instead, since a
// namespace rename also renames this website's physical per-url-list tables.
func (h *Handle) UpdateWebsite(id uint64, name, domain string) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE websites SET name = ?, domain = ? WHERE id = ?", name, domain, id)
		return execErr
	})
}

// WebsiteNamespace is a fast path for Thread resurrection (spec §3), which
// only needs the namespace, not the full row.
func (h *Handle) WebsiteNamespace(id uint64) (string, error) {
	if id == 0 {
		return "", nil
	}
	w, err := h.GetWebsite(id)
	return w.Namespace, err
}

// DeleteWebsite deletes website id after cascading through every child
// UrlList (spec §4.1 "Cascading deletes"): delete_website first deletes
// every child UrlList (which drops its own three physical tables plus
// every derived module table), then the website row itself.
func (h *Handle) DeleteWebsite(id uint64, urlLists []UrlList, derivedByUrlList map[uint64][]DerivedTable) error {
	for _, ul := range urlLists {
		if err := h.DeleteUrlList(ul, derivedByUrlList[ul.ID]); err != nil {
			return fmt.Errorf("store: cascading delete of url list %d: %w", ul.ID, err)
		}
	}
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(), "DELETE FROM websites WHERE id = ?", id)
		if execErr != nil {
			return execErr
		}
		return h.resetAutoIncrementIfEmpty("websites")
	})
}

// resetAutoIncrementIfEmpty implements the invariant "row deletion after a
// clean stop resets the auto-increment iff the table becomes empty" (spec
// §3), generalised to any table.
func (h *Handle) resetAutoIncrementIfEmpty(table string) error {
	var count int
	row := h.conn.QueryRowContext(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM `%s`", table))
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count != 0 {
		return nil
	}
	_, err := h.conn.ExecContext(context.Background(), fmt.Sprintf("ALTER TABLE `%s` AUTO_INCREMENT = 1", table))
	return err
}

// DuplicateWebsite creates a copy of website w with a de-duplicated
// namespace (spec §8 "duplicate_website"): its configurations, queries and
// URL-list namespaces must compare equal except for the newly minted
// namespace suffix. urlLists/queries/configs are the source website's
// children, supplied by the caller since listing them is a separate Store
// operation.
func (h *Handle) DuplicateWebsite(w Website, urlLists []UrlList, queries []Query, configs []Configuration) (newID uint64, err error) {
	newNamespace := h.duplicateNamespace(w.Namespace, h.websiteNamespaceExists)

	newID, err = h.AddWebsite(Website{Name: w.Name + " (copy)", Namespace: newNamespace, Domain: w.Domain})
	if err != nil {
		return 0, err
	}
	for _, ul := range urlLists {
		if _, err := h.AddUrlList(UrlList{WebsiteID: newID, Name: ul.Name, Namespace: ul.Namespace}); err != nil {
			return newID, fmt.Errorf("store: duplicating url list %q: %w", ul.Namespace, err)
		}
	}
	for _, q := range queries {
		q.WebsiteID = newID
		if _, err := h.AddQuery(q); err != nil {
			return newID, fmt.Errorf("store: duplicating query %q: %w", q.Name, err)
		}
	}
	for _, c := range configs {
		c.WebsiteID = newID
		if _, err := h.AddConfig(c); err != nil {
			return newID, fmt.Errorf("store: duplicating config %q: %w", c.Name, err)
		}
	}
	return newID, nil
}

func (h *Handle) websiteNamespaceExists(ns string) bool {
	var exists bool
	_ = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(),
			"SELECT EXISTS(SELECT 1 FROM websites WHERE namespace = ?)", ns)
		return row.Scan(&exists)
	})
	return exists
}

// errNoSuchWebsite is returned by lookups against an unknown website id.
var errNoSuchWebsite = sql.ErrNoRows
