package docs

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromem "github.com/philippgille/chromem-go"
)

const defaultHashDimensions = 512

// EmbedderConfig selects how chunks are embedded.
type EmbedderConfig struct {
	// Provider is "hash" (offline, default) or "openai".
	Provider   string
	Model      string
	APIKey     string
	Dimensions int
}

// NewEmbeddingFunc builds the chromem embedding function for cfg.
func NewEmbeddingFunc(cfg EmbedderConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		return HashEmbedding(cfg.Dimensions), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an API key")
		}
		model := chromem.EmbeddingModelOpenAI3Small
		if cfg.Model != "" {
			model = chromem.EmbeddingModelOpenAI(cfg.Model)
		}
		return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// HashEmbedding returns a deterministic bag-of-words embedding using the
// hashing trick. Vectors are L2-normalized so chromem's dot-product
// similarity is the cosine.
func HashEmbedding(dimensions int) chromem.EmbeddingFunc {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dimensions)
		for _, token := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(token))
			sum := h.Sum32()
			sign := float32(1)
			if sum&1 == 1 {
				sign = -1
			}
			vec[int(sum>>1)%dimensions] += sign
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
