package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tanmaypaliwal576/OpsMind/config"
	"github.com/tanmaypaliwal576/OpsMind/llm"
)

func TestOllamaClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Fatal("Generate must not request a stream")
		}
		payload := map[string]any{
			"message": map[string]string{"role": "assistant", "content": "full answer"},
			"done":    true,
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test-model"})
	answer, err := client.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "full answer" {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestOllamaClientGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		fragments := []string{"Par", "is is", " the capital."}
		for i, fragment := range fragments {
			payload := map[string]any{
				"message": map[string]string{"role": "assistant", "content": fragment},
				"done":    i == len(fragments)-1,
			}
			if err := enc.Encode(payload); err != nil {
				t.Fatalf("encode stream chunk: %v", err)
			}
		}
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test-model"})

	var seen []string
	err := client.GenerateStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "capital?"}}, func(fragment string) error {
		seen = append(seen, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Par", "is is", " the capital."}
	if len(seen) != len(want) {
		t.Fatalf("expected %d fragments, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("fragment %d out of order: %q", i, seen[i])
		}
	}
}

func TestOllamaClientSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "missing"})
	if _, err := client.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error from 404 response")
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	var cfg config.Config
	cfg.LLM.Provider = "mystery"
	if _, err := llm.NewClient(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewClientOpenAIRequiresKey(t *testing.T) {
	var cfg config.Config
	cfg.LLM.Provider = config.ProviderOpenAI
	if _, err := llm.NewClient(cfg); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
}
