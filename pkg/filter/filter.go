// Package filter decides whether a ranking item is a download candidate and
// whether it must be quarantined. Evaluation is a pure function of the item
// and an immutable RuleSet.
package filter

import (
	"fmt"
	"math"
	"strings"
)

// ContentType is pixiv's numeric illust_type
type ContentType int

const (
	TypeIllust ContentType = 0
	TypeManga  ContentType = 1
	TypeUgoira ContentType = 2
)

func (t ContentType) String() string {
	switch t {
	case TypeIllust:
		return "illust"
	case TypeManga:
		return "manga"
	case TypeUgoira:
		return "ugoira"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Orientation selects items by their pixel geometry
type Orientation string

const (
	OrientationAny       Orientation = "any"
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
	OrientationSquare    Orientation = "square"
	OrientationDesktop   Orientation = "desktop"
	OrientationNoManga   Orientation = "nomanga"
)

var orientations = map[Orientation]bool{
	OrientationAny: true, OrientationLandscape: true, OrientationPortrait: true,
	OrientationSquare: true, OrientationDesktop: true, OrientationNoManga: true,
}

// ValidOrientation reports whether o names a known orientation ("" counts as any)
func ValidOrientation(o string) bool {
	return o == "" || orientations[Orientation(strings.ToLower(o))]
}

// ValidType reports whether t is "all", "" or a content type name
func ValidType(t string) bool {
	switch strings.ToLower(t) {
	case "", "all", "illust", "manga", "ugoira":
		return true
	}
	return false
}

// Item is the subset of a ranking entry the rules look at
type Item struct {
	ID     int64
	Tags   []string
	Width  int
	Height int
	Type   ContentType
}

// ConditionalRule blocks an item that carries IfExists but lacks MustHave
type ConditionalRule struct {
	IfExists string
	MustHave string
}

// RuleSet is built once per run and never mutated
type RuleSet struct {
	Tags         []string
	Block        []string
	NoWord       []string
	BlockGroups  [][]string
	Conditionals []ConditionalRule
	Orientation  Orientation
	Type         string
	Max          int
}

// Decision is the outcome of evaluating one item
type Decision struct {
	Candidate bool
	Blocked   bool
	Reason    string
}

// Evaluate applies rules to item. Block rules only run for candidates.
func Evaluate(item Item, rules RuleSet) Decision {
	if !matchTags(item.Tags, rules.Tags) || !matchOrientation(item, rules.Orientation) || !matchType(item.Type, rules.Type) {
		return Decision{}
	}

	if reason, blocked := blockReason(item.Tags, rules); blocked {
		return Decision{Candidate: true, Blocked: true, Reason: reason}
	}
	return Decision{Candidate: true}
}

func matchTags(tags, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, want := range allow {
		for _, tag := range tags {
			if strings.EqualFold(want, tag) {
				return true
			}
		}
	}
	return false
}

func matchOrientation(item Item, o Orientation) bool {
	w, h := float64(item.Width), float64(item.Height)

	switch Orientation(strings.ToLower(string(o))) {
	case OrientationLandscape:
		return w > h
	case OrientationPortrait:
		return h > w
	case OrientationSquare:
		return item.Width == item.Height
	case OrientationDesktop:
		if h <= 0 {
			return false
		}
		ratio := w / h
		return ratio >= 1.5 && ratio <= 1.85
	case OrientationNoManga:
		lo := math.Min(w, h)
		if lo <= 0 {
			return false
		}
		return math.Max(w, h)/lo <= 10
	default:
		return true
	}
}

func matchType(t ContentType, want string) bool {
	switch strings.ToLower(want) {
	case "", "all":
		return true
	default:
		return strings.EqualFold(t.String(), want)
	}
}

func blockReason(tags []string, rules RuleSet) (string, bool) {
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	joined := strings.Join(lowered, " ")

	for _, b := range rules.Block {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		for _, t := range lowered {
			if t == b {
				return "block:" + b, true
			}
		}
		if len([]rune(b)) >= 3 && strings.Contains(joined, b) {
			return "block:" + b, true
		}
	}

	for _, w := range rules.NoWord {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(joined, w) {
			return "noword:" + w, true
		}
	}

	for _, group := range rules.BlockGroups {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, g := range group {
			if !strings.Contains(joined, strings.ToLower(g)) {
				all = false
				break
			}
		}
		if all {
			return "group:[" + strings.Join(group, ",") + "]", true
		}
	}

	// conditionals keep the operator's case
	rawJoined := strings.Join(tags, " ")
	for _, c := range rules.Conditionals {
		if c.IfExists == "" {
			continue
		}
		if strings.Contains(rawJoined, c.IfExists) && !strings.Contains(rawJoined, c.MustHave) {
			return fmt.Sprintf("%s without %s", c.IfExists, c.MustHave), true
		}
	}

	return "", false
}
