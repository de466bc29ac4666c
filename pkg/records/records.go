package records

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is the durable form of one turn, one JSON object per line.
type Record struct {
	Role           string    `json:"role"`
	Name           string    `json:"name"`
	Content        string    `json:"content"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Turn           int       `json:"turn"`
	TokenCount     int       `json:"token_count"`
	ResponseType   string    `json:"response_type"`
}

func FromTurn(t turns.Turn) Record {
	return Record{
		Role:           string(t.Role),
		Name:           t.SpeakerName,
		Content:        t.Content,
		ConversationID: t.ConversationID,
		Turn:           t.TurnIndex,
		TokenCount:     t.TokenCount(),
		ResponseType:   string(t.ResponseType),
	}
}

func (r Record) ToTurn() turns.Turn {
	return turns.NewTurn(r.ConversationID, r.Turn, turns.Role(r.Role), turns.ResponseType(r.ResponseType), r.Name, r.Content)
}

const timestampLayout = "2006-01-02_15-04-05"

// NewRunPath names the output stream of a batch run after its start time.
func NewRunPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("synthgen_%s.jsonl", now.Format(timestampLayout)))
}

// Writer appends records to one output stream. Each Append is flushed to
// disk before it returns, so a crash never loses an acknowledged record.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Create opens a new output stream at path. It never appends to an existing
// file: on collision a -N suffix is added before the extension.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create output directory")
	}

	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	candidate := path
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return &Writer{f: f, path: candidate}, nil
		}
		if !os.IsExist(err) || i > 1000 {
			return nil, errors.Wrapf(err, "could not create output file %s", candidate)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Append(t turns.Turn) error {
	data, err := json.Marshal(FromTurn(t))
	if err != nil {
		return errors.Wrap(err, "could not marshal record")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return errors.New("output file is closed")
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return errors.Wrapf(err, "could not write record to %s", w.path)
	}
	if err := w.f.Sync(); err != nil {
		return errors.Wrapf(err, "could not sync %s", w.path)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// ReadFile parses every record of an output stream. Blank lines are skipped.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	ret := []Record{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, errors.Wrapf(err, "%s:%d: invalid record", path, line)
		}
		ret = append(ret, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	return ret, nil
}

// Conversation is the records of one conversation id, in file order.
type Conversation struct {
	ID      uuid.UUID
	Records []Record
}

func (c Conversation) Turns() []turns.Turn {
	ret := make([]turns.Turn, 0, len(c.Records))
	for _, r := range c.Records {
		ret = append(ret, r.ToTurn())
	}
	return ret
}

// GroupByConversation splits records by conversation, ordered by first appearance.
func GroupByConversation(rs []Record) []Conversation {
	ret := []Conversation{}
	index := map[uuid.UUID]int{}
	for _, r := range rs {
		i, ok := index[r.ConversationID]
		if !ok {
			i = len(ret)
			index[r.ConversationID] = i
			ret = append(ret, Conversation{ID: r.ConversationID})
		}
		ret[i].Records = append(ret[i].Records, r)
	}
	return ret
}
