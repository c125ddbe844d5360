package pixiv

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	// BaseURL is the pixiv web origin
	BaseURL = "https://www.pixiv.net"

	// Referer must accompany every request, including image CDN fetches
	Referer = "https://www.pixiv.net/"

	RankingEndpoint = "/ranking.php"
	IllustEndpoint  = "/ajax/illust/"
)

var (
	modes = map[string]bool{
		"daily": true, "weekly": true, "monthly": true, "rookie": true, "original": true,
		"daily_ai": true, "male": true, "female": true,
		"daily_r18": true, "weekly_r18": true, "male_r18": true, "female_r18": true,
		"daily_r18_ai": true, "r18g": true,
	}
	contents = map[string]bool{"all": true, "illust": true, "manga": true, "ugoira": true}
)

// IsValidMode reports whether mode is a known ranking mode
func IsValidMode(mode string) bool { return modes[mode] }

// IsValidContent reports whether content is a known ranking content filter
func IsValidContent(content string) bool { return contents[content] }

// RankingURL builds the listing URL. Page 1 is requested without a page parameter.
func RankingURL(base, date, mode, content string, page int) string {
	params := url.Values{}
	params.Set("mode", mode)
	params.Set("content", content)
	if date != "" {
		params.Set("date", date)
	}
	if page > 1 {
		params.Set("p", strconv.Itoa(page))
	}
	params.Set("format", "json")

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), RankingEndpoint, params.Encode())
}

// IllustURL builds ajax/illust/<id>
func IllustURL(base string, id int64) string {
	return strings.TrimRight(base, "/") + IllustEndpoint + strconv.FormatInt(id, 10)
}

// PagesURL builds ajax/illust/<id>/pages
func PagesURL(base string, id int64) string {
	return IllustURL(base, id) + "/pages"
}

// UgoiraMetaURL builds ajax/illust/<id>/ugoira_meta
func UgoiraMetaURL(base string, id int64) string {
	return IllustURL(base, id) + "/ugoira_meta"
}

// ArtworkURL is the public page of an illust
func ArtworkURL(id int64) string {
	return BaseURL + "/artworks/" + strconv.FormatInt(id, 10)
}

// ExtFromURL returns the file extension of an image URL without the dot,
// defaulting to jpg
func ExtFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return "jpg"
	}
	return strings.ToLower(ext)
}
