package store

import (
	"fmt"
	"regexp"
)

// namespaceRe restricts namespaces to the character set and minimum length
// required by the glossary entry for "Namespace": `[A-Za-z0-9$_]+`, length
// >= 4. "config" is reserved for UrlList namespaces (spec §3).
var namespaceRe = regexp.MustCompile(`^[A-Za-z0-9$_]{4,}$`)

// ReservedUrlListNamespace is the UrlList namespace reserved for
// configuration storage (spec §3).
const ReservedUrlListNamespace = "config"

// ValidNamespace reports whether ns is a syntactically valid namespace.
func ValidNamespace(ns string) bool {
	return namespaceRe.MatchString(ns)
}

// UrlListTableName returns the physical URL table name for a website/url
// list namespace pair (spec §6).
func UrlListTableName(websiteNS, urlListNS string) string {
	return fmt.Sprintf("%s_%s", websiteNS, urlListNS)
}

// CrawledTableName returns the physical crawled-content table name.
func CrawledTableName(websiteNS, urlListNS string) string {
	return UrlListTableName(websiteNS, urlListNS) + "_crawled"
}

// LinksTableName returns the physical link table name.
func LinksTableName(websiteNS, urlListNS string) string {
	return UrlListTableName(websiteNS, urlListNS) + "_links"
}

// DerivedTableName returns the physical name for a parsed/extracted/
// analyzed derived table, e.g. `<ws>_<ul>_parsed_<table>`.
func DerivedTableName(websiteNS, urlListNS, module, tableNS string) string {
	return fmt.Sprintf("%s_%s_%s", UrlListTableName(websiteNS, urlListNS), module, tableNS)
}

// ChildTableNames lists every physical table name dependent on a given
// website/url-list namespace pair; used both by namespace rename (so every
// child table is renamed atomically) and by delete_url_list (so every
// child table is dropped in the order spec §4.1 describes: links, crawled,
// url table).
func ChildTableNames(websiteNS, urlListNS string, derived []DerivedTable) []string {
	names := make([]string, 0, 3+len(derived))
	names = append(names, LinksTableName(websiteNS, urlListNS))
	names = append(names, CrawledTableName(websiteNS, urlListNS))
	for _, d := range derived {
		names = append(names, DerivedTableName(websiteNS, urlListNS, d.Module, d.TableNamespace))
	}
	names = append(names, UrlListTableName(websiteNS, urlListNS))
	return names
}

// DerivedTable names one parsed/extracted/analyzed table belonging to a
// URL list, tracked in the `parsedtables`/`extractedtables`/`analyzedtables`
// global tables (spec §6).
type DerivedTable struct {
	Module         string // "parsed", "extracted" or "analyzed"
	TableNamespace string
}
