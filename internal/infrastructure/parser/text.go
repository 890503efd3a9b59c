package parser

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// parseDate accepts the date shapes commonly found in HTML metadata.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// truncate cuts value to at most n runes.
func truncate(value string, n int) string {
	if n <= 0 || utf8.RuneCountInString(value) <= n {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:n]))
}

// stripHTML returns the visible text of an HTML fragment.
func stripHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return cleanText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	return cleanText(doc.Text())
}

// paragraphText joins paragraph-like blocks longer than minLen.
func paragraphText(sel *goquery.Selection, minLen int) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := cleanText(p.Text())
		if len(text) > minLen {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}
