package records

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunPath(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "synthgen_2024-03-09_07-05-01.jsonl"), NewRunPath("out", now))
}

func TestCreateNeverReusesAFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "run.jsonl")

	w1, err := Create(p)
	require.NoError(t, err)
	defer w1.Close()
	w2, err := Create(p)
	require.NoError(t, err)
	defer w2.Close()

	assert.Equal(t, p, w1.Path())
	assert.Equal(t, filepath.Join(dir, "run-1.jsonl"), w2.Path())
}

func TestRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "run.jsonl")
	w, err := Create(p)
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	written := []turns.Turn{
		turns.NewTurn(a, 0, turns.RoleUser, turns.ResponseTypeUser, "Joseph", "line one\nline \"two\""),
		turns.NewTurn(a, 1, turns.RoleAssistant, turns.ResponseTypeChainOfReason, "CoR", "think"),
		turns.NewTurn(b, 0, turns.RoleUser, turns.ResponseTypeUser, "Joseph", "other"),
		turns.NewTurn(a, 2, turns.RoleAssistant, turns.ResponseTypeAssistant, "Professor", "🧙🏿‍♂️: answer"),
	}
	for _, tr := range written {
		require.NoError(t, w.Append(tr))
	}
	require.NoError(t, w.Close())
	assert.Error(t, w.Append(written[0]))

	rs, err := ReadFile(p)
	require.NoError(t, err)
	require.Len(t, rs, 4)
	assert.Equal(t, written[3].TokenCount(), rs[3].TokenCount)
	assert.Equal(t, "chain-of-reason", rs[1].ResponseType)

	convs := GroupByConversation(rs)
	require.Len(t, convs, 2)
	assert.Equal(t, a, convs[0].ID)
	assert.Equal(t, []turns.Turn{written[0], written[1], written[3]}, convs[0].Turns())
	assert.Equal(t, []turns.Turn{written[2]}, convs[1].Turns())
}

func TestConcurrentAppendsKeepLinesIntact(t *testing.T) {
	p := filepath.Join(t.TempDir(), "run.jsonl")
	w, err := Create(p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			for j := 0; j < 10; j++ {
				assert.NoError(t, w.Append(turns.NewTurn(id, j, turns.RoleUser, turns.ResponseTypeUser, "J", "x")))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	rs, err := ReadFile(p)
	require.NoError(t, err)
	assert.Len(t, rs, 80)
	for _, c := range GroupByConversation(rs) {
		for i, r := range c.Records {
			assert.Equal(t, i, r.Turn)
		}
	}
}

func TestReadFileReportsBadLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(p, []byte("{\"role\":\"user\"}\n\nnot json\n"), 0o644))
	_, err := ReadFile(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":3:")
}
