package domain

import "strings"

// Page is a fetched HTTP response body.
type Page struct {
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	Body        []byte
}

// IsHTML reports whether the page looks like an HTML document.
func (p Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" || strings.Contains(ct, "html")
}
