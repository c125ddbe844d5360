package filter

import (
	"regexp"
	"strings"
)

var groupPattern = regexp.MustCompile(`\[[^\[\]]+?[\])]`)

// ParseBlockGroups parses the block-group flag syntax, e.g. "[a,b][c,d][R-18,safe)".
// A group closed by ']' is an AND group and is lower-cased. A group closed by
// ')' is a conditional rule (first tag present, second required) with case kept.
// Groups with fewer than two tags are ignored.
func ParseBlockGroups(raw string) ([][]string, []ConditionalRule) {
	raw = strings.ReplaceAll(raw, `"`, "")

	var groups [][]string
	var conditionals []ConditionalRule

	for _, m := range groupPattern.FindAllString(raw, -1) {
		conditional := strings.HasSuffix(m, ")")
		inner := m[1 : len(m)-1]

		var tags []string
		for _, t := range strings.Split(inner, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) < 2 {
			continue
		}

		if conditional {
			conditionals = append(conditionals, ConditionalRule{IfExists: tags[0], MustHave: tags[1]})
			continue
		}
		for i := range tags {
			tags[i] = strings.ToLower(tags[i])
		}
		groups = append(groups, tags)
	}

	return groups, conditionals
}

// SplitList splits a comma separated flag value, dropping whitespace and empties
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Join(strings.Fields(part), "")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Summary counts the configured rules for the start-up banner
type Summary struct {
	Tags         int
	Block        int
	NoWord       int
	BlockGroups  int
	Conditionals int
}

func (r RuleSet) Summary() Summary {
	return Summary{
		Tags:         len(r.Tags),
		Block:        len(r.Block),
		NoWord:       len(r.NoWord),
		BlockGroups:  len(r.BlockGroups),
		Conditionals: len(r.Conditionals),
	}
}

// Active reports whether any tag rule is configured
func (s Summary) Active() bool {
	return s.Tags+s.Block+s.NoWord+s.BlockGroups+s.Conditionals > 0
}
