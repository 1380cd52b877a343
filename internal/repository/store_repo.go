package repository

import "github.com/crab-wise/tryst-scraper/internal/entity"

// WorkLedger is the durable record of URLs already fully attempted. Presence
// means "do not reprocess", regardless of whether the attempt succeeded or
// failed terminally.
type WorkLedger interface {
	// IsDone reports whether the URL was completed by this or any prior run.
	IsDone(url string) bool
	// MarkDone durably appends the URL. Safe for concurrent use. A write
	// failure must propagate so the caller aborts instead of silently
	// losing the entry.
	MarkDone(url string) error
	// Pending returns all minus the done set, preserving input order and
	// deduplicating by normalized exact match.
	Pending(all []string) []string
}

// RecordStore persists one row per completed ProfileRecord. Appends are
// serialized by the implementation.
type RecordStore interface {
	Append(rec *entity.ProfileRecord) error
	Close() error
}

// ProgressStore rewrites the advisory progress snapshot.
type ProgressStore interface {
	Write(snap *entity.ProgressSnapshot) error
}

// URLSink merges harvested profile URLs into the durable URL list,
// reporting the list's total size and how many of the URLs were new.
type URLSink interface {
	Merge(urls map[string]struct{}) (total, added int, err error)
}
