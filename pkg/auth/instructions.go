package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints how to copy the pixiv cookie header out of a browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"PIXIV COOKIE GUIDE",
		rule,
		"",
		"R-18 rankings and some originals need a logged-in pixiv session.",
		"",
		"1. Log in at https://www.pixiv.net in your browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Network tab: reload, pick any request to www.pixiv.net.",
		"4. Under Request Headers copy the whole value of the 'Cookie:' line.",
		"",
		"The header must contain " + SessionCookie + "=<digits>_<token>.",
		"A JSON cookie export ([{\"name\":..,\"value\":..}]) also works with --cookie-file.",
		"",
		"The cookie grants full access to your account. It is stored in the",
		"system keychain or an encrypted file, never in the config file.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// WriteQuickGuide is the one-line reminder shown at the login prompt
func WriteQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 > Network > reload > any www.pixiv.net request > Headers > Cookie (needs "+SessionCookie+")")
}
