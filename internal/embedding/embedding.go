package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"

	"ThesisScout/internal/domain"
	"ThesisScout/internal/ports"
)

// FallbackModel names vectors produced by HashEmbedding.
const FallbackModel = "hash-fallback"

// Embedder maps text into the configured vector space. Provider failures,
// panics and vectors of the wrong dimension fall back to HashEmbedding.
type Embedder struct {
	provider  ports.EmbeddingProvider
	dimension int
	memo      *cache.Cache
	logger    *slog.Logger
}

var _ ports.TextEmbedder = (*Embedder)(nil)

// New builds an embedder. provider may be nil; cacheTTL <= 0 disables the memo.
func New(provider ports.EmbeddingProvider, dimension int, cacheTTL time.Duration, logger *slog.Logger) *Embedder {
	e := &Embedder{provider: provider, dimension: dimension, logger: logger}
	if cacheTTL > 0 {
		e.memo = cache.New(cacheTTL, 2*cacheTTL)
	}
	return e
}

// Dimension returns the vector length of every embedding produced.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed never fails.
func (e *Embedder) Embed(ctx context.Context, text string) domain.Embedding {
	if e.provider == nil || strings.TrimSpace(text) == "" {
		return domain.Embedding{Vector: HashEmbedding(text, e.dimension), Model: FallbackModel}
	}

	key := cacheKey(e.provider.Model(), text)
	if e.memo != nil {
		if v, ok := e.memo.Get(key); ok {
			return v.(domain.Embedding)
		}
	}

	vector, err := e.callProvider(ctx, text)
	if err == nil && len(vector) != e.dimension {
		err = fmt.Errorf("provider returned dimension %d, want %d", len(vector), e.dimension)
	}
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("embedding fell back", "model", e.provider.Model(), "error", err)
		}
		return domain.Embedding{Vector: HashEmbedding(text, e.dimension), Model: FallbackModel}
	}

	emb := domain.Embedding{Vector: vector, Model: e.provider.Model()}
	if e.memo != nil {
		e.memo.SetDefault(key, emb)
	}
	return emb
}

func (e *Embedder) callProvider(ctx context.Context, text string) (vector []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedding provider panic: %v", r)
		}
	}()
	return e.provider.Embed(ctx, text)
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// HashEmbedding is a deterministic signed feature hash of the lowercase
// unigrams and bigrams of text, L2-normalized. Empty text yields the zero
// vector.
func HashEmbedding(text string, dimension int) []float32 {
	if dimension <= 0 {
		return nil
	}
	vec := make([]float64, dimension)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	add := func(feature string) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(dimension))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	for i, tok := range tokens {
		add(tok)
		if i > 0 {
			add(tokens[i-1] + " " + tok)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
