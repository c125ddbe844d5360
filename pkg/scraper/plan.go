package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pixivrank/pkg/config"
	"pixivrank/pkg/filter"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/storage"
)

const dateLayout = "20060102"

// Batch is a set of dates processed together into one directory
type Batch struct {
	Label string
	Dates []string
	Dir   string
}

// Plan is the immutable description of one invocation
type Plan struct {
	Mode    string
	Content string
	Pages   int
	// Period is the date, month or year the invocation was asked for
	Period  string
	Batches []Batch
	Rules   filter.RuleSet

	Resume       bool
	ForceRestart bool
}

// PlanFromConfig expands the ranking section into batches. Without a date,
// month or year the run covers yesterday relative to now.
func PlanFromConfig(cfg *config.Config, now time.Time) (Plan, error) {
	r := cfg.Ranking
	if !pixiv.IsValidMode(r.Mode) {
		return Plan{}, fmt.Errorf("unknown ranking mode %q", r.Mode)
	}
	if !pixiv.IsValidContent(r.Content) {
		return Plan{}, fmt.Errorf("unknown ranking content %q", r.Content)
	}

	plan := Plan{
		Mode:    r.Mode,
		Content: r.Content,
		Pages:   r.Pages,
		Rules:   cfg.Filter.RuleSet(),
	}

	firstTag := ""
	if len(plan.Rules.Tags) > 0 {
		firstTag = plan.Rules.Tags[0]
	}
	output := cfg.Output.BaseDirectory

	switch {
	case r.Year != "":
		year, err := strconv.Atoi(r.Year)
		if err != nil || len(r.Year) != 4 {
			return Plan{}, fmt.Errorf("invalid year %q, expected YYYY", r.Year)
		}
		plan.Period = r.Year
		dir := storage.BatchDir(output, firstTag, r.Year)
		for m := time.January; m <= time.December; m++ {
			first := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
			plan.Batches = append(plan.Batches, Batch{
				Label: first.Format("200601"),
				Dates: DatesInMonth(first),
				Dir:   dir,
			})
		}

	case r.Month != "":
		first, err := time.Parse("200601", r.Month)
		if err != nil || len(r.Month) != 6 {
			return Plan{}, fmt.Errorf("invalid month %q, expected YYYYMM", r.Month)
		}
		plan.Period = r.Month
		plan.Batches = []Batch{{
			Label: r.Month,
			Dates: DatesInMonth(first),
			Dir:   storage.BatchDir(output, firstTag, r.Month),
		}}

	default:
		date := r.Date
		if date == "" {
			date = now.AddDate(0, 0, -1).Format(dateLayout)
		}
		if _, err := time.Parse(dateLayout, date); err != nil || len(date) != 8 {
			return Plan{}, fmt.Errorf("invalid date %q, expected YYYYMMDD", date)
		}
		plan.Period = date
		plan.Batches = []Batch{{
			Label: date,
			Dates: []string{date},
			Dir:   storage.BatchDir(output, firstTag, date),
		}}
	}

	return plan, nil
}

// DatesInMonth lists every date of the month containing t
func DatesInMonth(t time.Time) []string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	var dates []string
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}

// Dates returns every date of the plan in order
func (p Plan) Dates() []string {
	var out []string
	for _, b := range p.Batches {
		out = append(out, b.Dates...)
	}
	return out
}

// ruleKey flattens everything that changes the candidate set, for the
// checkpoint signature
func (p Plan) ruleKey() []string {
	r := p.Rules
	groups := make([]string, 0, len(r.BlockGroups))
	for _, g := range r.BlockGroups {
		groups = append(groups, strings.Join(g, "+"))
	}
	conds := make([]string, 0, len(r.Conditionals))
	for _, c := range r.Conditionals {
		conds = append(conds, c.IfExists+">"+c.MustHave)
	}
	return []string{
		"tags=" + strings.Join(r.Tags, ","),
		"block=" + strings.Join(r.Block, ","),
		"noword=" + strings.Join(r.NoWord, ","),
		"groups=" + strings.Join(groups, ","),
		"cond=" + strings.Join(conds, ","),
		"orientation=" + string(r.Orientation),
		"type=" + r.Type,
		"max=" + strconv.Itoa(r.Max),
		"pages=" + strconv.Itoa(p.Pages),
	}
}
