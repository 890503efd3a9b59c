package extractor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"ThesisScout/internal/domain"
)

type analyzerFunc func(ctx context.Context, text, articleURL string) (domain.Features, error)

func (f analyzerFunc) Analyze(ctx context.Context, text, articleURL string) (domain.Features, error) {
	return f(ctx, text, articleURL)
}

func TestExtractGenericTextHasNoCompanies(t *testing.T) {
	t.Parallel()

	features := New(nil, nil).Extract(context.Background(), "energy solutions", "https://example.com/")
	if len(features.Companies) != 0 {
		t.Fatalf("expected no companies, got %v", features.Companies)
	}
	if features.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", features.Source)
	}
}

func TestExtractUsesAnalyzerAndFiltersCompanies(t *testing.T) {
	t.Parallel()

	analyzer := analyzerFunc(func(context.Context, string, string) (domain.Features, error) {
		return domain.Features{
			Title:     "Storage boom",
			Summary:   "Utilities buy batteries.",
			Keywords:  []string{"Storage", "storage", " batteries "},
			Companies: []string{"Energy Solutions", "Green Capital Inc", "Fluence", "fluence", "Tesla Inc"},
		}, nil
	})

	features := New(analyzer, nil).Extract(context.Background(), "some text", "https://example.com/a")
	if features.Source != SourceAI || features.Title != "Storage boom" {
		t.Fatalf("unexpected features: %+v", features)
	}
	if want := []string{"storage", "batteries"}; !reflect.DeepEqual(features.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", features.Keywords, want)
	}
	if want := []string{"Fluence", "Tesla Inc"}; !reflect.DeepEqual(features.Companies, want) {
		t.Fatalf("companies = %v, want %v", features.Companies, want)
	}
}

func TestExtractFillsMissingAIFields(t *testing.T) {
	t.Parallel()

	analyzer := analyzerFunc(func(context.Context, string, string) (domain.Features, error) {
		return domain.Features{}, nil
	})
	features := New(analyzer, nil).Extract(context.Background(), "Heat pumps outsold furnaces.", "https://example.com/news/heat-pumps")
	if features.Title != "Heat Pumps - example.com" {
		t.Fatalf("unexpected title: %q", features.Title)
	}
	if features.Summary != "Heat pumps outsold furnaces." {
		t.Fatalf("unexpected summary: %q", features.Summary)
	}
}

func TestExtractRecoversFromAnalyzerFailures(t *testing.T) {
	t.Parallel()

	failing := []analyzerFunc{
		func(context.Context, string, string) (domain.Features, error) {
			return domain.Features{}, errors.New("rate limited")
		},
		func(context.Context, string, string) (domain.Features, error) {
			panic("malformed response")
		},
	}
	for _, analyzer := range failing {
		features := New(analyzer, nil).Extract(context.Background(), "Acme Robotics Inc raised money.", "https://example.com/x")
		if features.Source != SourceFallback {
			t.Fatalf("expected fallback, got %+v", features)
		}
		if want := []string{"Acme Robotics Inc"}; !reflect.DeepEqual(features.Companies, want) {
			t.Fatalf("companies = %v, want %v", features.Companies, want)
		}
	}
}

func TestTitleFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://blog.example.com/2024/05/grid-storage_boom", "Grid Storage Boom - blog.example.com"},
		{"https://blog.example.com/posts/solar.html", "Solar - blog.example.com"},
		{"https://blog.example.com/", "Content from blog.example.com"},
		{"https://blog.example.com/2024/05", "Content from blog.example.com"},
		{"", "Untitled"},
	}
	for _, tt := range tests {
		if got := TitleFromURL(tt.url); got != tt.want {
			t.Fatalf("TitleFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSummarizeKeepsWholeSentences(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 150) + "."
	second := strings.Repeat("b", 120) + "."
	third := strings.Repeat("c", 100) + "."
	got := Summarize(first+" "+second+" "+third, 300)
	if got != first+" "+second {
		t.Fatalf("unexpected summary: %q", got)
	}

	long := strings.Repeat("word ", 100)
	got = Summarize(long, 300)
	if !strings.HasSuffix(got, "...") || len(got) > 300 || strings.Contains(got, "wor...") {
		t.Fatalf("unexpected cut summary: %q", got)
	}
}

func TestKeywordsByFrequencyThenAlphabet(t *testing.T) {
	t.Parallel()

	text := "Storage storage STORAGE batteries batteries grid wind solar the with that and"
	got := Keywords(text, 3)
	if want := []string{"storage", "batteries", "grid"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keywords = %v, want %v", got, want)
	}
}

func TestCompaniesFromTextAndURL(t *testing.T) {
	t.Parallel()

	text := "The Carrier Global Corp deal closed. Manufacturers such as Trane Technologies expanded."
	if got, want := CompaniesFromText(text), []string{"Carrier Global Corp", "Trane Technologies"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("CompaniesFromText = %v, want %v", got, want)
	}
	if got, want := CompaniesFromURL("https://example.com/portfolio/acme-tech/news"), []string{"Acme Tech"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("CompaniesFromURL = %v, want %v", got, want)
	}
}

func TestIsGenericCompany(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"Energy Solutions":  true,
		"Green Capital Inc": true,
		"Capital":           true,
		"Acme Capital":      false,
		"Tesla":             false,
	} {
		if got := IsGenericCompany(name); got != want {
			t.Fatalf("IsGenericCompany(%q) = %v, want %v", name, got, want)
		}
	}
}
