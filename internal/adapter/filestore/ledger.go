// Package filestore implements the durable flat-file state of the pipeline:
// the append-only work ledger, the CSV record store, the advisory progress
// snapshot, and the line-delimited URL seed list.
package filestore

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/crab-wise/tryst-scraper/pkg/utils"
)

// Ledger provides a concrete implementation of the WorkLedger interface on an
// append-only line-delimited file, mirrored in memory for O(1) lookups.
type Ledger struct {
	mu   sync.Mutex
	file *os.File
	done map[string]struct{}
}

// NewLedger opens (or creates) the ledger file and loads every prior entry.
func NewLedger(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	done := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		url := utils.NormalizeURL(scanner.Text())
		if url == "" {
			continue
		}
		done[url] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	// Position at end for appends.
	if _, err := f.Seek(0, 2); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek ledger %s: %w", path, err)
	}

	return &Ledger{file: f, done: done}, nil
}

// IsDone reports whether the URL was completed by this or any prior run.
func (l *Ledger) IsDone(url string) bool {
	url = utils.NormalizeURL(url)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[url]
	return ok
}

// MarkDone appends the URL to the file and the in-memory set. The durable
// append happens first: on write failure the entry is not added to the set and
// the error propagates so the run aborts instead of losing ledger state.
func (l *Ledger) MarkDone(url string) error {
	url = utils.NormalizeURL(url)
	if url == "" {
		return fmt.Errorf("mark done: empty url")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[url]; ok {
		return nil
	}
	if _, err := fmt.Fprintln(l.file, url); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	l.done[url] = struct{}{}
	return nil
}

// Pending returns all minus the done set, preserving input order and
// deduplicating by normalized exact match so repeated runs are reproducible.
func (l *Ledger) Pending(all []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(all))
	pending := make([]string, 0, len(all))
	for _, raw := range all {
		url := utils.NormalizeURL(raw)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		if _, ok := l.done[url]; ok {
			continue
		}
		pending = append(pending, url)
	}
	return pending
}

// Len returns the number of completed entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

// Close releases the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
