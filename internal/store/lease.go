package store

import "time"

// IsLockableAt reports whether a lock field value allows a new lease to be
// acquired at instant now: null or in the past (spec §3 "lockable").
func IsLockableAt(lock *time.Time, now time.Time) bool {
	return lock == nil || lock.Before(now)
}

// lockColumn returns the Url lock column name for a module.
func lockColumn(m Module) string {
	switch m {
	case ModuleCrawler:
		return "crawl_lock"
	case ModuleParser:
		return "parse_lock"
	case ModuleExtractor:
		return "extract_lock"
	case ModuleAnalyzer:
		return "analyze_lock"
	default:
		return ""
	}
}

// finishedColumn returns the Url completion-flag column name for a module.
func finishedColumn(m Module) string {
	switch m {
	case ModuleCrawler:
		return "crawled"
	case ModuleParser:
		return "parsed"
	case ModuleExtractor:
		return "extracted"
	case ModuleAnalyzer:
		return "analyzed"
	default:
		return ""
	}
}
