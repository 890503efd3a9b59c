package extractor

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ThesisScout/internal/domain"
)

const (
	summaryChars    = 300
	maxKeywords     = 8
	maxURLCompanies = 3
	maxCompanies    = 10
)

var (
	sentenceEnd  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	wordExpr     = regexp.MustCompile(`[A-Za-z]+`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
	companyExpr  = regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'-]*\s+){1,3})(Inc|Corp|Corporation|LLC|Ltd|Limited|PLC|GmbH|AG|Technologies|Holdings|Group|Systems|Labs)\b`)
	urlCompanyIn = []string{"inc", "corp", "llc", "tech", "solutions"}

	leadingNoise = toSet([]string{"the", "a", "an", "and", "by", "for", "with", "from", "at", "in", "on", "as", "of"})
	stopwords    = toSet([]string{
		"about", "above", "after", "again", "against", "also", "among", "because", "been", "before",
		"being", "below", "between", "both", "could", "does", "doing", "down", "during", "each",
		"even", "ever", "every", "from", "further", "have", "having", "here", "into", "just",
		"like", "many", "more", "most", "much", "must", "only", "other", "over", "said", "same",
		"says", "should", "since", "some", "such", "than", "that", "their", "them", "then",
		"there", "these", "they", "this", "those", "through", "under", "until", "very", "were",
		"what", "when", "where", "which", "while", "will", "with", "within", "without", "would",
		"year", "years", "your", "yours", "make", "made", "still", "well", "back",
	})
)

// Fallback derives features without any external service.
func Fallback(text, articleURL string) domain.Features {
	return domain.Features{
		Title:     TitleFromURL(articleURL),
		Summary:   Summarize(text, summaryChars),
		Keywords:  Keywords(text, maxKeywords),
		Companies: FilterCompanies(append(CompaniesFromText(text), CompaniesFromURL(articleURL)...)),
		Source:    SourceFallback,
	}
}

// TitleFromURL builds "Last Segment Words - host" from the last meaningful
// path segment, or "Content from host" when there is none.
func TitleFromURL(articleURL string) string {
	u, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil || u.Host == "" {
		if articleURL == "" {
			return "Untitled"
		}
		return "Content from " + articleURL
	}

	segments := meaningfulSegments(u.Path)
	if len(segments) == 0 {
		return "Content from " + u.Host
	}
	return humanize(segments[len(segments)-1]) + " - " + u.Host
}

// CompaniesFromURL title-cases company-looking path segments such as
// "acme-tech" or "contoso-inc".
func CompaniesFromURL(articleURL string) []string {
	u, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil {
		return nil
	}
	var out []string
	for _, seg := range meaningfulSegments(u.Path) {
		lower := strings.ToLower(seg)
		for _, marker := range urlCompanyIn {
			if strings.Contains(lower, marker) {
				out = append(out, humanize(seg))
				break
			}
		}
		if len(out) == maxURLCompanies {
			break
		}
	}
	return out
}

// CompaniesFromText finds names followed by a corporate suffix.
func CompaniesFromText(text string) []string {
	var out []string
	for _, m := range companyExpr.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 && leadingNoise[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		out = append(out, strings.Join(append(words, m[2]), " "))
		if len(out) == maxCompanies {
			break
		}
	}
	return out
}

// Summarize keeps whole leading sentences up to limit characters. A first
// sentence longer than limit is cut at a word boundary with "...".
func Summarize(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) <= limit {
		return text
	}

	var b strings.Builder
	rest := text
	for rest != "" {
		loc := sentenceEnd.FindStringIndex(rest)
		end := len(rest)
		if loc != nil {
			end = loc[1]
		}
		sentence := strings.TrimSpace(rest[:end])
		next := b.Len() + len(sentence)
		if b.Len() > 0 {
			next++
		}
		if next > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
		rest = rest[end:]
	}
	if b.Len() > 0 {
		return b.String()
	}

	cut := string([]rune(text)[:limit-3])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}

// Keywords returns the n most frequent non-stopword tokens longer than three
// letters; ties are ordered alphabetically.
func Keywords(text string, n int) []string {
	counts := map[string]int{}
	for _, w := range wordExpr.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if len(w) <= 3 || stopwords[w] {
			continue
		}
		counts[w]++
	}

	keywords := make([]string, 0, len(counts))
	for w := range counts {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

func meaningfulSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if len(seg) > 2 && !digitsOnly.MatchString(seg) {
			out = append(out, seg)
		}
	}
	return out
}

func humanize(segment string) string {
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	return cases.Title(language.English).String(strings.Join(strings.Fields(segment), " "))
}
