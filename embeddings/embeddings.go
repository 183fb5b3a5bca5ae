package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/tanmaypaliwal576/OpsMind/config"
)

// Embedder maps texts to fixed-length dense vectors. Positions holding
// blank input come back as nil vectors without any upstream call; a non-nil
// error always means the upstream call itself failed and the caller must
// abort or retry, never treat it as "no answer".
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

// partitionBlank separates the texts worth sending upstream from blank
// entries. The returned index slice maps each payload position back to its
// original batch position.
func partitionBlank(texts []string) (indices []int, payload []string) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		indices = append(indices, i)
		payload = append(payload, text)
	}
	return indices, payload
}
