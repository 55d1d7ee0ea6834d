package store

import (
	"context"
	"fmt"

	"github.com/crawlserv/crawlservpp-sub001/internal/urix"
)

// duplicateNamespace wraps urix.DuplicateNamespace with an exists probe,
// shared by website/url-list/query/config duplication (spec §4.1
// "Deduplication of namespaces").
func (h *Handle) duplicateNamespace(ns string, exists func(string) bool) string {
	return urix.DuplicateNamespace(ns, exists)
}

// RenameWebsiteNamespace renames a website's namespace and every
// dependent physical table in one transactional batch, updating the
// parent row last (spec §4.1 "Namespace rename"). Must only be called
// while no Worker holds the website (the caller — the control endpoint —
// is responsible for checking active threads first, per spec §6 scenario
// 4: rejected "while crawler is active").
func (h *Handle) RenameWebsiteNamespace(websiteID uint64, oldNS, newNS string, urlLists []UrlList, derivedByUrlList map[uint64][]DerivedTable) error {
	if !ValidNamespace(newNS) {
		return fmt.Errorf("store: invalid namespace %q", newNS)
	}
	return h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		for _, ul := range urlLists {
			oldNames := ChildTableNames(oldNS, ul.Namespace, derivedByUrlList[ul.ID])
			newNames := ChildTableNames(newNS, ul.Namespace, derivedByUrlList[ul.ID])
			for i := range oldNames {
				if _, execErr := tx.ExecContext(context.Background(),
					fmt.Sprintf("RENAME TABLE `%s` TO `%s`", oldNames[i], newNames[i])); execErr != nil {
					return execErr
				}
			}
		}

		if _, execErr := tx.ExecContext(context.Background(),
			"UPDATE websites SET namespace = ? WHERE id = ?", newNS, websiteID); execErr != nil {
			return execErr
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}
		for _, ul := range urlLists {
			h.invalidateTableNames(ul.ID)
		}
		return nil
	})
}

// RenameUrlListNamespace renames one UrlList's namespace and its three (or
// more, with derived tables) physical tables atomically (spec §4.1).
func (h *Handle) RenameUrlListNamespace(urlListID uint64, websiteNS, oldNS, newNS string, derived []DerivedTable) error {
	if !ValidNamespace(newNS) {
		return fmt.Errorf("store: invalid namespace %q", newNS)
	}
	if newNS == ReservedUrlListNamespace {
		return fmt.Errorf("store: namespace %q is reserved", ReservedUrlListNamespace)
	}
	oldNames := ChildTableNames(websiteNS, oldNS, derived)
	newNames := ChildTableNames(websiteNS, newNS, derived)

	return h.withRetry(func() error {
		tx, txErr := h.conn.BeginTx(context.Background(), nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		for i := range oldNames {
			if _, execErr := tx.ExecContext(context.Background(),
				fmt.Sprintf("RENAME TABLE `%s` TO `%s`", oldNames[i], newNames[i])); execErr != nil {
				return execErr
			}
		}
		if _, execErr := tx.ExecContext(context.Background(),
			"UPDATE urllists SET namespace = ? WHERE id = ?", newNS, urlListID); execErr != nil {
			return execErr
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}
		h.invalidateTableNames(urlListID)
		return nil
	})
}
