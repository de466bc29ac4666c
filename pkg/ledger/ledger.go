package ledger

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Ledger is the set of fully processed document identifiers, backed by a
// newline-delimited file that only grows during normal operation.
// It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	path    string
	entries map[string]struct{}
}

// Open loads the ledger at path. A missing file is an empty ledger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: map[string]struct{}{}}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, errors.Wrapf(err, "could not open ledger %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		l.entries[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not read ledger %s", path)
	}
	return l, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[id]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns the identifiers, sorted.
func (l *Ledger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// RecordProcessed appends id to the ledger file and syncs it. Recording an id
// that is already present does nothing.
func (l *Ledger) RecordProcessed(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return errors.Errorf("invalid ledger identifier %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; ok {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "could not create ledger directory")
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "could not open ledger %s", l.path)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.WriteString(id + "\n"); err != nil {
		return errors.Wrapf(err, "could not append to ledger %s", l.path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "could not sync ledger %s", l.path)
	}

	l.entries[id] = struct{}{}
	return nil
}

// Forget removes id so the document is processed again on the next run. The
// file is rewritten through a temporary file and a rename. It reports
// whether id was present.
func (l *Ledger) Forget(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; !ok {
		return false, nil
	}

	remaining := make([]string, 0, len(l.entries)-1)
	for e := range l.entries {
		if e != id {
			remaining = append(remaining, e)
		}
	}
	sort.Strings(remaining)

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return false, errors.Wrap(err, "could not create temporary ledger")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := bufio.NewWriter(tmp)
	for _, e := range remaining {
		if _, err := w.WriteString(e + "\n"); err != nil {
			cleanup()
			return false, errors.Wrap(err, "could not write temporary ledger")
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return false, errors.Wrap(err, "could not write temporary ledger")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return false, errors.Wrap(err, "could not sync temporary ledger")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false, errors.Wrap(err, "could not close temporary ledger")
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return false, errors.Wrapf(err, "could not replace ledger %s", l.path)
	}

	delete(l.entries, id)
	return true, nil
}
