package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "processed_notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Contains("a.md"))
}

func TestOpenIgnoresBlankLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "processed_notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("a.md\n\n  \nb.md\na.md\n"), 0o644))

	l, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, l.Entries())
}

func TestRecordProcessedIsIdempotent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "processed_notes.txt")
	l, err := Open(p)
	require.NoError(t, err)

	require.NoError(t, l.RecordProcessed("notes/a.md"))
	require.NoError(t, l.RecordProcessed("notes/a.md"))
	assert.True(t, l.Contains("notes/a.md"))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md\n", string(b))

	reopened, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/a.md"}, reopened.Entries())

	assert.Error(t, l.RecordProcessed(" "))
	assert.Error(t, l.RecordProcessed("a\nb"))
}

func TestConcurrentRecordsAreAllKept(t *testing.T) {
	p := filepath.Join(t.TempDir(), "processed_notes.txt")
	l, err := Open(p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				// Every worker records the shared ids too.
				assert.NoError(t, l.RecordProcessed(fmt.Sprintf("doc-%d-%d.md", w, i)))
				assert.NoError(t, l.RecordProcessed(fmt.Sprintf("shared-%d.md", i)))
			}
		}(w)
	}
	wg.Wait()

	reopened, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, 8*25+25, reopened.Len())

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(b)), "\n"), 8*25+25)
}

func TestForget(t *testing.T) {
	p := filepath.Join(t.TempDir(), "processed_notes.txt")
	l, err := Open(p)
	require.NoError(t, err)
	require.NoError(t, l.RecordProcessed("b.md"))
	require.NoError(t, l.RecordProcessed("a.md"))

	removed, err := l.Forget("b.md")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, l.Contains("b.md"))

	removed, err = l.Forget("nope.md")
	require.NoError(t, err)
	assert.False(t, removed)

	reopened, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, reopened.Entries())

	matches, err := filepath.Glob(p + ".tmp-*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}
