package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

const maxPromptChars = 8000

// Analyzer asks an OpenAI-compatible chat model for article features.
type Analyzer struct {
	client   *openai.Client
	model    string
	excluded []string
}

var _ ports.TextAnalyzer = (*Analyzer)(nil)

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string
}

var _ ports.EmbeddingProvider = (*Embedder)(nil)

// NewAnalyzer builds a chat-backed analyzer. excluded lists generic terms the
// model must not report as companies.
func NewAnalyzer(cfg config.AIConfig, excluded []string) *Analyzer {
	return &Analyzer{
		client:   newClient(cfg),
		model:    cfg.ChatModel,
		excluded: excluded,
	}
}

// NewEmbedder builds an embeddings client.
func NewEmbedder(cfg config.AIConfig) *Embedder {
	return &Embedder{client: newClient(cfg), model: cfg.EmbeddingModel}
}

func newClient(cfg config.AIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return openai.NewClientWithConfig(clientCfg)
}

type analysis struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Keywords  []string `json:"keywords"`
	Companies []string `json:"companies"`
}

// Analyze returns title, summary, keywords and companies for the article.
func (a *Analyzer) Analyze(ctx context.Context, text, articleURL string) (domain.Features, error) {
	if a == nil || a.client == nil {
		return domain.Features{}, fmt.Errorf("analyzer is nil")
	}
	if a.model == "" {
		return domain.Features{}, fmt.Errorf("analyzer misconfigured: empty chat model")
	}

	if r := []rune(text); len(r) > maxPromptChars {
		text = string(r[:maxPromptChars])
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(a.excluded)},
			{Role: openai.ChatMessageRoleUser, Content: "URL: " + articleURL + "\n\n" + text},
		},
	})
	if err != nil {
		return domain.Features{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Features{}, fmt.Errorf("chat completion returned no choices")
	}

	var out analysis
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &out); err != nil {
		return domain.Features{}, fmt.Errorf("decode analysis: %w", err)
	}
	return domain.Features{
		Title:     out.Title,
		Summary:   out.Summary,
		Keywords:  out.Keywords,
		Companies: out.Companies,
	}, nil
}

// Model names the embedding model.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response is empty")
	}
	return resp.Data[0].Embedding, nil
}

func systemPrompt(excluded []string) string {
	var b strings.Builder
	b.WriteString("You analyze news and blog articles for an investment research team. ")
	b.WriteString(`Reply with a single JSON object {"title": string, "summary": string, "keywords": [string], "companies": [string]}. `)
	b.WriteString("The summary has at most three sentences. Give up to eight lowercase keywords. ")
	b.WriteString("List only specific, named companies mentioned in the article.")
	if len(excluded) > 0 {
		b.WriteString(" Never list generic business words as companies, such as: ")
		b.WriteString(strings.Join(excluded, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), "```"))
}
