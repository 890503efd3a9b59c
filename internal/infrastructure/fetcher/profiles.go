package fetcher

// HeaderProfile is a coherent set of browser request headers.
type HeaderProfile struct {
	Name    string
	Headers map[string]string
}

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// DefaultProfiles returns the built-in browser profiles in rotation order.
// Accept-Encoding is left to the transport so gzip is decoded transparently.
func DefaultProfiles() []HeaderProfile {
	return []HeaderProfile{
		{
			Name: "chrome-windows",
			Headers: map[string]string{
				"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Accept":                    acceptHTML,
				"Accept-Language":           "en-US,en;q=0.9",
				"Cache-Control":             "max-age=0",
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "none",
				"Sec-Fetch-User":            "?1",
				"Upgrade-Insecure-Requests": "1",
			},
		},
		{
			Name: "safari-macos",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
		{
			Name: "firefox-linux",
			Headers: map[string]string{
				"User-Agent":                "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
				"Accept":                    acceptHTML,
				"Accept-Language":           "en-US,en;q=0.5",
				"DNT":                       "1",
				"Upgrade-Insecure-Requests": "1",
			},
		},
		{
			Name: "edge-windows",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
				"Accept":          acceptHTML,
				"Accept-Language": "en-US,en;q=0.9",
				"Referer":         "https://www.google.com/",
				"Sec-Fetch-Dest":  "document",
				"Sec-Fetch-Mode":  "navigate",
				"Sec-Fetch-Site":  "cross-site",
			},
		},
	}
}
