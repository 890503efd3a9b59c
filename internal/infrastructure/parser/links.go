package parser

import (
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"ThesisScout/internal/domain"
)

var (
	articlePathExpr = regexp.MustCompile(`/(article|articles|post|posts|news|blog|stories|story|insights)/|/(19|20)\d{2}/`)

	utilitySegments = map[string]bool{
		"tag": true, "tags": true, "category": true, "categories": true, "author": true, "authors": true,
		"page": true, "search": true, "about": true, "contact": true, "privacy": true, "terms": true,
		"login": true, "register": true, "signup": true, "subscribe": true, "newsletter": true,
		"feed": true, "rss": true, "sitemap": true, "cart": true, "account": true, "careers": true,
	}

	assetExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
		".pdf": true, ".css": true, ".js": true, ".xml": true, ".json": true, ".zip": true, ".txt": true,
		".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".woff": true, ".woff2": true,
	}
)

// NormalizeIndexURL validates user input and defaults the scheme to https.
func NormalizeIndexURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.InvalidInput("empty url")
	}
	if strings.ContainsAny(raw, " \t\n") {
		return "", domain.InvalidInput("url %q contains whitespace", raw)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.InvalidInput("unparseable url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", domain.InvalidInput("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" || (!strings.Contains(host, ".") && host != "localhost" && net.ParseIP(host) == nil) {
		return "", domain.InvalidInput("url %q has no valid host", raw)
	}
	u.Fragment = ""
	return u.String(), nil
}

// resolveLink turns href into an absolute http(s) URL relative to base.
func resolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return nil, false
	}
	abs.Fragment = ""
	return abs, true
}

// siteName returns the registrable domain of a host (blog.example.co.uk ->
// example.co.uk), or the bare host when it has none.
func siteName(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	if site, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return site
	}
	return host
}

func sameSite(a, b *url.URL) bool {
	return siteName(a.Hostname()) == siteName(b.Hostname())
}

// isLikelyArticleURL filters navigation, taxonomy and asset links.
func isLikelyArticleURL(candidate, base *url.URL) bool {
	if candidate == nil || base == nil || !sameSite(candidate, base) {
		return false
	}
	p := strings.ToLower(candidate.Path)
	if len(strings.Trim(p, "/")) < 2 {
		return false
	}
	if assetExtensions[path.Ext(p)] {
		return false
	}
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if strings.HasPrefix(seg, "wp-") {
			return false
		}
		if utilitySegments[seg] {
			return false
		}
		if i := strings.IndexByte(seg, '-'); i > 0 && utilitySegments[seg[:i]] && len(strings.Split(seg, "-")) <= 2 {
			return false
		}
	}
	if strings.TrimRight(candidate.Path, "/") == strings.TrimRight(base.Path, "/") && candidate.RawQuery == "" {
		return false
	}
	return true
}

// looksLikeArticlePath reports whether a path carries a typical article marker.
func looksLikeArticlePath(u *url.URL) bool {
	return articlePathExpr.MatchString(strings.ToLower(u.Path) + "/")
}

// candidateURLs expands relative probe paths against the index URL first and
// the site root second.
func candidateURLs(indexURL string, paths []string) []string {
	u, err := url.Parse(indexURL)
	if err != nil {
		return nil
	}
	prefix := strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/")
	root := u.Scheme + "://" + u.Host

	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, p := range paths {
		add(prefix + "/" + strings.TrimLeft(p, "/"))
	}
	for _, p := range paths {
		add(root + "/" + strings.TrimLeft(p, "/"))
	}
	return out
}
