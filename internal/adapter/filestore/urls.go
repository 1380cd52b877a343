package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/crab-wise/tryst-scraper/pkg/utils"
)

// LoadURLList reads a line-delimited URL file, trimming whitespace and
// skipping blank lines. Order is preserved.
func LoadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		url := utils.NormalizeURL(scanner.Text())
		if url == "" {
			continue
		}
		urls = append(urls, url)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list %s: %w", path, err)
	}
	return urls, nil
}

// URLFile provides a concrete implementation of the URLSink interface on
// the line-delimited profile-URL list.
type URLFile struct {
	path string
}

func NewURLFile(path string) *URLFile {
	return &URLFile{path: path}
}

func (u *URLFile) Merge(urls map[string]struct{}) (total, added int, err error) {
	return SaveURLSet(u.path, urls)
}

// SaveURLSet merges urls with any already saved in the file and rewrites it
// sorted, so incremental finder runs never lose earlier discoveries. It
// returns the total and newly added counts.
func SaveURLSet(path string, urls map[string]struct{}) (total, added int, err error) {
	existing := make(map[string]struct{})
	if prior, loadErr := LoadURLList(path); loadErr == nil {
		for _, u := range prior {
			existing[u] = struct{}{}
		}
	} else if !errors.Is(loadErr, os.ErrNotExist) {
		return 0, 0, loadErr
	}

	before := len(existing)
	for u := range urls {
		existing[utils.NormalizeURL(u)] = struct{}{}
	}
	delete(existing, "")

	merged := make([]string, 0, len(existing))
	for u := range existing {
		merged = append(merged, u)
	}
	sort.Strings(merged)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, 0, fmt.Errorf("write url list %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, u := range merged {
		fmt.Fprintln(w, u)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, 0, fmt.Errorf("flush url list: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, 0, fmt.Errorf("close url list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, 0, fmt.Errorf("replace url list %s: %w", path, err)
	}
	return len(merged), len(merged) - before, nil
}

// Reset removes the given state files, ignoring ones that do not exist.
func Reset(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
