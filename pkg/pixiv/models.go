package pixiv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexInt decodes a JSON number that pixiv sometimes sends as a string
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	*f = FlexInt(n)
	return nil
}

// PageRef is a listing page number, or false when there is none
type PageRef int

func (p *PageRef) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "false", "null", `""`:
		*p = 0
		return nil
	}
	var n FlexInt
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = PageRef(n)
	return nil
}

func (p PageRef) MarshalJSON() ([]byte, error) {
	if p <= 0 {
		return []byte("false"), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

// RankingEntry is one element of a listing's contents array
type RankingEntry struct {
	IllustID   int64    `json:"illust_id"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	IllustType FlexInt  `json:"illust_type"`
	PageCount  FlexInt  `json:"illust_page_count"`
	Rank       int      `json:"rank"`
	UserName   string   `json:"user_name"`
}

// RankingMeta is everything in a listing response besides its contents
type RankingMeta struct {
	Mode      string  `json:"mode"`
	Content   string  `json:"content"`
	Date      string  `json:"date"`
	Page      int     `json:"page"`
	Prev      PageRef `json:"prev"`
	Next      PageRef `json:"next"`
	RankTotal int     `json:"rank_total"`
}

// RankingResponse is the listing endpoint's JSON
type RankingResponse struct {
	Contents []RankingEntry `json:"contents"`
	RankingMeta
}

// RawMeta returns the listing metadata for the cache
func (r *RankingResponse) RawMeta() json.RawMessage {
	data, err := json.Marshal(r.RankingMeta)
	if err != nil {
		return nil
	}
	return data
}

// HasNext reports whether the listing has another page
func (r *RankingResponse) HasNext() bool {
	return r.Next > 0
}

// ImageURLs holds the size variants of one image
type ImageURLs struct {
	Original string `json:"original"`
	Regular  string `json:"regular"`
	Small    string `json:"small"`
}

// Best returns the largest available variant
func (u ImageURLs) Best() string {
	switch {
	case u.Original != "":
		return u.Original
	case u.Regular != "":
		return u.Regular
	default:
		return u.Small
	}
}

// Tag is one tag of an illust's detail
type Tag struct {
	Tag string `json:"tag"`
}

// TagList wraps the detail's tags
type TagList struct {
	Tags []Tag `json:"tags"`
}

// Names returns the plain tag strings
func (t TagList) Names() []string {
	names := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		names = append(names, tag.Tag)
	}
	return names
}

// IllustDetail is the body of ajax/illust/<id>
type IllustDetail struct {
	ID         string    `json:"illustId"`
	Title      string    `json:"illustTitle"`
	PageCount  int       `json:"pageCount"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	IllustType FlexInt   `json:"illustType"`
	URLs       ImageURLs `json:"urls"`
	Tags       TagList   `json:"tags"`
}

// IllustPage is one element of ajax/illust/<id>/pages
type IllustPage struct {
	URLs   ImageURLs `json:"urls"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// UgoiraFrame names one archive entry and its display time in milliseconds
type UgoiraFrame struct {
	File  string `json:"file"`
	Delay int    `json:"delay"`
}

// UgoiraMeta is the body of ajax/illust/<id>/ugoira_meta
type UgoiraMeta struct {
	Src         string        `json:"src"`
	OriginalSrc string        `json:"originalSrc"`
	MimeType    string        `json:"mime_type"`
	Frames      []UgoiraFrame `json:"frames"`
}

// ArchiveURL prefers the full-size frame archive
func (m UgoiraMeta) ArchiveURL() string {
	if m.OriginalSrc != "" {
		return m.OriginalSrc
	}
	return m.Src
}

// envelope is the wrapper every ajax endpoint returns. A refusal carries an
// empty array as body, so the body is decoded only after the error flag.
type envelope struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}
