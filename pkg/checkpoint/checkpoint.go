package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pixivrank/pkg/logger"
	"pixivrank/pkg/storage"
)

// Version is the file format written by this package
const Version = 1

// Checkpoint is the resumable state of one invocation
type Checkpoint struct {
	RunID          string    `json:"run_id"`
	Signature      string    `json:"signature"`
	Mode           string    `json:"mode"`
	Content        string    `json:"content"`
	Period         string    `json:"period"`
	CompletedDates []string  `json:"completed_dates"`
	TotalCompleted int       `json:"total_completed"`
	TotalFailed    int       `json:"total_failed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// IsDateDone reports whether date was fully processed
func (c *Checkpoint) IsDateDone(date string) bool {
	_, found := slices.BinarySearch(c.CompletedDates, date)
	return found
}

// Pending filters dates down to the ones not yet done, keeping their order
func (c *Checkpoint) Pending(dates []string) []string {
	if c == nil {
		return dates
	}
	var out []string
	for _, d := range dates {
		if !c.IsDateDone(d) {
			out = append(out, d)
		}
	}
	return out
}

// Signature identifies a run by everything that changes its candidate set
func Signature(mode, content, period string, rules ...string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", mode, content, period, strings.Join(rules, "|"))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// DefaultDir is the per-user checkpoint directory
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "pixivrank", "checkpoints"), nil
}

// Manager owns the checkpoint file of one signature
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager creates a manager under DefaultDir
func NewManager(signature string) (*Manager, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate checkpoint directory: %w", err)
	}
	return NewManagerAt(dir, signature)
}

// NewManagerAt creates a manager that keeps its file in dir
func NewManagerAt(dir, signature string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		path:   filepath.Join(dir, signature+".checkpoint.json"),
		logger: logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// Create starts a new checkpoint and saves it
func (m *Manager) Create(runID, signature, mode, content, period string) (*Checkpoint, error) {
	cp := &Checkpoint{
		RunID:          runID,
		Signature:      signature,
		Mode:           mode,
		Content:        content,
		Period:         period,
		CompletedDates: []string{},
		CreatedAt:      time.Now(),
		Version:        Version,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run_id": runID,
		"period": period,
		"path":   m.path,
	})
	return cp, nil
}

// Load returns the saved checkpoint, or nil when there is none. A file
// written by a newer format is refused rather than misread.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", m.path, err)
	}
	if cp.Version > Version {
		return nil, fmt.Errorf("checkpoint %s has version %d, this build reads up to %d", m.path, cp.Version, Version)
	}
	slices.Sort(cp.CompletedDates)

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"run_id":          cp.RunID,
		"period":          cp.Period,
		"completed_dates": len(cp.CompletedDates),
		"updated_at":      cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	_, err := storage.WriteAtomic(m.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"run_id":          cp.RunID,
		"completed_dates": len(cp.CompletedDates),
	})
	return nil
}

// MarkDate records date as done, adds its counts and saves
func (m *Manager) MarkDate(cp *Checkpoint, date string, completed, failed int) error {
	if i, found := slices.BinarySearch(cp.CompletedDates, date); !found {
		cp.CompletedDates = slices.Insert(cp.CompletedDates, i, date)
	}
	cp.TotalCompleted += completed
	cp.TotalFailed += failed
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.path
}
