package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// QuarantineDir holds blocked items beside the regular output
const QuarantineDir = "_black"

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// Sanitize replaces characters that are invalid in file names with "_"
func Sanitize(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// BatchDir returns "<output>/<tag>_<period>" for the first allow-tag, or
// "<output>/<period>" without one
func BatchDir(output, firstTag, period string) string {
	prefix := ""
	if firstTag != "" {
		prefix = Sanitize(firstTag) + "_"
	}
	return filepath.Join(output, prefix+period)
}

// Layout computes file paths inside one batch directory
type Layout struct {
	base string
}

// NewLayout returns the layout rooted at base
func NewLayout(base string) Layout {
	return Layout{base: base}
}

// Base returns the batch directory
func (l Layout) Base() string { return l.base }

// Dir returns the directory for regular or quarantined items
func (l Layout) Dir(blocked bool) string {
	if blocked {
		return filepath.Join(l.base, QuarantineDir)
	}
	return l.base
}

// Single is the path of a one-file work
func (l Layout) Single(blocked bool, id int64, ext string) string {
	return filepath.Join(l.Dir(blocked), strconv.FormatInt(id, 10)+"."+ext)
}

// MultiDir is the folder of a multi-page work
func (l Layout) MultiDir(blocked bool, id int64, count int) string {
	return filepath.Join(l.Dir(blocked), fmt.Sprintf("%d(%d)", id, count))
}

// Multi is the path of page index of a multi-page work
func (l Layout) Multi(blocked bool, id int64, count, index int, ext string) string {
	return filepath.Join(l.MultiDir(blocked, id, count), fmt.Sprintf("%d_%d.%s", id, index, ext))
}

// Ugoira is the path of an assembled animation
func (l Layout) Ugoira(blocked bool, id int64) string {
	return l.Single(blocked, id, "gif")
}
