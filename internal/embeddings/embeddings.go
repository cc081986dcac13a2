package embeddings

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

const localDimensions = 256

// Func returns the embedding function used by the vector collections.
// "openai" uses the hosted embedding API; "local" is a deterministic
// offline fallback with no semantic quality guarantees beyond lexical
// overlap.
func Func(provider, model string) (chromem.EmbeddingFunc, error) {
	switch provider {
	case "openai":
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return chromem.NewEmbeddingFuncOpenAI(key, openAIModel(model)), nil
	case "local":
		return Local(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func openAIModel(model string) chromem.EmbeddingModelOpenAI {
	switch model {
	case "text-embedding-3-large":
		return chromem.EmbeddingModelOpenAI3Large
	case "text-embedding-ada-002":
		return chromem.EmbeddingModelOpenAI2Ada
	default:
		return chromem.EmbeddingModelOpenAI3Small
	}
}

// Local returns a deterministic bag-of-words hashing embedder.
// Identical texts always produce identical vectors, and texts sharing
// tokens land near each other, which is enough for offline use and tests.
func Local() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, localDimensions)
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%localDimensions] += 1
		}
		normalize(vec)
		return vec, nil
	}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		// Zero vectors break cosine similarity; give empty text a fixed direction.
		vec[0] = 1
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
