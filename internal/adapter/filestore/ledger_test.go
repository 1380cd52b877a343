package filestore

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMarkAndSkip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	l, err := NewLedger(path)
	require.NoError(t, err)
	defer l.Close()

	assert.False(t, l.IsDone("https://example.com/escort/a"))
	require.NoError(t, l.MarkDone("https://example.com/escort/a"))
	assert.True(t, l.IsDone("https://example.com/escort/a"))

	// Trailing whitespace normalizes to the same entry.
	assert.True(t, l.IsDone("  https://example.com/escort/a \n"))

	// Duplicate marks are no-ops.
	require.NoError(t, l.MarkDone("https://example.com/escort/a"))
	assert.Equal(t, 1, l.Len())
}

func TestLedgerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")

	l, err := NewLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.MarkDone("https://example.com/escort/a"))
	require.NoError(t, l.MarkDone("https://example.com/escort/b"))
	require.NoError(t, l.Close())

	// Fresh instance simulates a process restart after N completions.
	l2, err := NewLedger(path)
	require.NoError(t, err)
	defer l2.Close()

	all := []string{
		"https://example.com/escort/a",
		"https://example.com/escort/b",
		"https://example.com/escort/c",
		"https://example.com/escort/d",
	}
	pending := l2.Pending(all)
	assert.Equal(t, []string{
		"https://example.com/escort/c",
		"https://example.com/escort/d",
	}, pending)
}

func TestPendingPreservesOrderAndDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	l, err := NewLedger(path)
	require.NoError(t, err)
	defer l.Close()

	all := []string{
		" https://example.com/escort/b ",
		"https://example.com/escort/a",
		"https://example.com/escort/b",
		"",
		"https://example.com/escort/a",
	}
	pending := l.Pending(all)
	assert.Equal(t, []string{
		"https://example.com/escort/b",
		"https://example.com/escort/a",
	}, pending)

	// Deterministic across repeated calls.
	assert.Equal(t, pending, l.Pending(all))
}

func TestLedgerConcurrentMarks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	l, err := NewLedger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	urls := make([]string, 50)
	for i := range urls {
		urls[i] = "https://example.com/escort/" + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			assert.NoError(t, l.MarkDone(u))
		}(u)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	l2, err := NewLedger(path)
	require.NoError(t, err)
	defer l2.Close()
	for _, u := range urls {
		assert.True(t, l2.IsDone(u), u)
	}
}
