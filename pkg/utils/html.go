package utils

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML returns only the text content of s. Book content is stored as
// submitted (it may contain editor markup); listings return it stripped.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tok.Text())
		}
	}
}
