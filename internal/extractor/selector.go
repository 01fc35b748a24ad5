package extractor

import (
	"strings"
)

// SelectPages concatenates, in order and with no separator, every non-empty
// page that contains all keywords. Matching is case-sensitive. With no
// keywords every non-empty page is kept.
func SelectPages(pages []string, keywords []string) string {
	var b strings.Builder
	for _, page := range pages {
		if page == "" || !containsAll(page, keywords) {
			continue
		}
		b.WriteString(page)
	}
	return b.String()
}

func containsAll(text string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}
