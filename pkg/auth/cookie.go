package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SessionCookie is the cookie pixiv uses for a logged-in session
const SessionCookie = "PHPSESSID"

type exportedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadCookieFile reads a cookie header from disk. A browser export (a JSON
// array of {name, value} objects) is joined into "name=value; ..."; any other
// content is taken as the raw header with line breaks removed.
func LoadCookieFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read cookie file: %w", err)
	}
	return ParseCookie(string(data))
}

// ParseCookie normalizes raw cookie text the same way LoadCookieFile does
func ParseCookie(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "[") {
		var cookies []exportedCookie
		if err := json.Unmarshal([]byte(text), &cookies); err != nil {
			return "", fmt.Errorf("failed to parse cookie export: %w", err)
		}
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			if c.Name == "" {
				continue
			}
			parts = append(parts, c.Name+"="+c.Value)
		}
		return strings.Join(parts, "; "), nil
	}

	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.TrimPrefix(text, "Cookie:")
	return strings.TrimSpace(text), nil
}

// HasSessionID reports whether the header carries a non-empty PHPSESSID
func HasSessionID(cookie string) bool {
	for _, part := range strings.Split(cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == SessionCookie && value != "" {
			return true
		}
	}
	return false
}
