// Package ledger reads and appends the per-directory _tags.txt file, one line
// per item that reached a terminal state. Re-runs consult the ledger to skip
// work already done.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"pixivrank/pkg/cache"
	"pixivrank/pkg/logger"
)

// FileName is the ledger file kept in every output directory
const FileName = "_tags.txt"

const (
	reasonLabel  = "被擋原因: "
	failedMarker = " | STATUS: failed"
)

var linePattern = regexp.MustCompile(`^\[(\d{8})/(\d+)\] RANK: (\d+) ID: (\d+) \| (?:` + reasonLabel + `(.*?) \| )?Tags: (.*)$`)

// ErrMalformed is returned by ParseLine for lines it cannot read
var ErrMalformed = errors.New("malformed ledger line")

// Entry is one ledger line
type Entry struct {
	Date   string
	Page   int
	Rank   int
	ID     int64
	Tags   []string
	Reason string
	Status cache.Status
}

// FormatEntry renders e without a trailing newline. Finished entries carry no
// status marker.
func FormatEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%d] RANK: %d ID: %d | ", e.Date, e.Page, e.Rank, e.ID)
	if e.Reason != "" {
		b.WriteString(reasonLabel)
		b.WriteString(e.Reason)
		b.WriteString(" | ")
	}
	b.WriteString("Tags: ")
	b.WriteString(strings.Join(e.Tags, ","))
	if e.Status == cache.StatusFailed {
		b.WriteString(failedMarker)
	}
	return b.String()
}

// ParseLine reads one ledger line. Lines without a status marker are finished.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")

	status := cache.StatusFinished
	if strings.HasSuffix(line, failedMarker) {
		status = cache.StatusFailed
		line = strings.TrimSuffix(line, failedMarker)
	}

	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	page, _ := strconv.Atoi(m[2])
	rank, _ := strconv.Atoi(m[3])
	id, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var tags []string
	if m[6] != "" {
		tags = strings.Split(m[6], ",")
	}

	return Entry{
		Date:   m[1],
		Page:   page,
		Rank:   rank,
		ID:     id,
		Tags:   tags,
		Reason: m[5],
		Status: status,
	}, nil
}

// Index is the latest recorded state of every id found in a set of ledgers
type Index struct {
	mu     sync.RWMutex
	states map[int64]cache.Status
}

// NewIndex returns an empty index
func NewIndex() *Index {
	return &Index{states: make(map[int64]cache.Status)}
}

// Open builds an index from the ledgers in dirs. Missing files are skipped and
// unreadable lines are ignored.
func Open(dirs ...string) (*Index, error) {
	idx := NewIndex()
	for _, dir := range dirs {
		if err := idx.load(filepath.Join(dir, FileName)); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (x *Index) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		e, err := ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		x.Record(e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	return nil
}

// Record updates the state of e.ID; later entries win
func (x *Index) Record(e Entry) {
	x.mu.Lock()
	x.states[e.ID] = e.Status
	x.mu.Unlock()
}

// Lookup returns the recorded state of id
func (x *Index) Lookup(id int64) (cache.Status, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s, ok := x.states[id]
	return s, ok
}

// ShouldSkip reports whether id needs no further work. A failed id is skipped
// unless retryFailed is set.
func (x *Index) ShouldSkip(id int64, retryFailed bool) bool {
	s, ok := x.Lookup(id)
	if !ok {
		return false
	}
	if s == cache.StatusFailed {
		return !retryFailed
	}
	return true
}

// Len returns the number of ids in the index
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.states)
}

// Writer appends entries and keeps an index current
type Writer struct {
	mu    sync.Mutex
	index *Index
	log   logger.Logger
}

// NewWriter returns a writer that records every appended entry in index
func NewWriter(index *Index, log logger.Logger) *Writer {
	if index == nil {
		index = NewIndex()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Writer{index: index, log: log.WithField("component", "ledger")}
}

// Append writes e to dir's ledger, creating dir if needed
func (w *Writer) Append(dir string, e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := f.WriteString(FormatEntry(e) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	w.index.Record(e)
	w.log.DebugWithFields("Ledger entry appended", map[string]interface{}{
		"illust_id": e.ID,
		"status":    e.Status.String(),
		"dir":       dir,
	})
	return nil
}

// Index returns the index the writer keeps current
func (w *Writer) Index() *Index {
	return w.index
}
