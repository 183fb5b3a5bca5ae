package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/tanmaypaliwal576/OpsMind/embeddings"
	"github.com/tanmaypaliwal576/OpsMind/llm"
)

// ErrEmptyQuestion is returned before any pipeline work when the question
// is blank after trimming.
var ErrEmptyQuestion = errors.New("question cannot be empty")

type Service struct {
	vectors       VectorStore
	conversations ConversationStore
	embedder      embeddings.Embedder
	llm           llm.Client
	logger        *log.Logger
	opts          Options
}

type Options struct {
	// MinConfidence is the gate threshold on the mean candidate score.
	// Zero selects the default; a negative value lowers the gate to 0 so
	// every query with at least one candidate is answered.
	MinConfidence float64
	NumCandidates int
	Limit         int
	// LogRefusals controls whether a refused query is still written to the
	// conversation log, with its sub-threshold confidence and no sources.
	LogRefusals bool
}

func NewService(vectors VectorStore, conversations ConversationStore, embedder embeddings.Embedder, llmClient llm.Client, logger *log.Logger, opts Options) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = DefaultMinConfidence
	} else if opts.MinConfidence < 0 {
		opts.MinConfidence = 0
	}
	if opts.NumCandidates <= 0 {
		opts.NumCandidates = DefaultNumCandidates
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	return &Service{
		vectors:       vectors,
		conversations: conversations,
		embedder:      embedder,
		llm:           llmClient,
		logger:        logger,
		opts:          opts,
	}
}

// Ask answers one question from the indexed documents, or refuses.
func (s *Service) Ask(ctx context.Context, question, userID string) (Response, error) {
	return s.ask(ctx, question, userID, nil)
}

// AskStream runs the same pipeline but relays each generated fragment to fn
// as it arrives, in order, while accumulating the full answer. The returned
// Response carries the concatenation of everything fn saw. When the
// configured client cannot stream, fn receives the whole answer once.
func (s *Service) AskStream(ctx context.Context, question, userID string, fn func(string) error) (Response, error) {
	return s.ask(ctx, question, userID, fn)
}

func (s *Service) ask(ctx context.Context, question, userID string, streamFn func(string) error) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}
	if s.embedder == nil {
		return Response{}, fmt.Errorf("embedder is not configured")
	}
	if s.vectors == nil {
		return Response{}, fmt.Errorf("vector store is not configured")
	}
	if s.llm == nil {
		return Response{}, fmt.Errorf("llm client is not configured")
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Response{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Response{}, fmt.Errorf("embedder returned no vector for question")
	}

	results, err := s.vectors.Search(ctx, vectors[0], s.opts.NumCandidates, s.opts.Limit)
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}

	confidence := MeanScore(results)
	if len(results) == 0 || confidence < s.opts.MinConfidence {
		return s.refuse(ctx, question, confidence, userID, streamFn)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt()},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, BuildContext(results))},
	}

	var answer string
	if streamFn != nil {
		if streamClient, ok := s.llm.(llm.StreamClient); ok {
			var builder strings.Builder
			streamErr := streamClient.GenerateStream(ctx, messages, func(chunk string) error {
				if chunk == "" {
					return nil
				}
				builder.WriteString(chunk)
				return streamFn(chunk)
			})
			if streamErr != nil {
				return Response{}, fmt.Errorf("llm stream generate: %w", streamErr)
			}
			answer = builder.String()
		} else {
			generated, genErr := s.llm.Generate(ctx, messages)
			if genErr != nil {
				return Response{}, fmt.Errorf("llm generate: %w", genErr)
			}
			answer = generated
			if err := streamFn(answer); err != nil {
				return Response{}, err
			}
		}
	} else {
		generated, genErr := s.llm.Generate(ctx, messages)
		if genErr != nil {
			return Response{}, fmt.Errorf("llm generate: %w", genErr)
		}
		answer = generated
	}

	resp := Response{
		Answer:     strings.TrimSpace(answer),
		Confidence: confidence,
		Sources:    DedupSources(results),
	}

	s.persist(ctx, question, resp, userID)
	return resp, nil
}

func (s *Service) refuse(ctx context.Context, question string, confidence float64, userID string, streamFn func(string) error) (Response, error) {
	resp := Response{
		Answer:     RefusalAnswer,
		Confidence: confidence,
		Sources:    []SourceCitation{},
		Refused:    true,
	}

	if streamFn != nil {
		if err := streamFn(RefusalAnswer); err != nil {
			return Response{}, err
		}
	}

	if s.opts.LogRefusals {
		s.persist(ctx, question, resp, userID)
	}

	return resp, nil
}

// persist writes the conversation record. A failure here must not disturb
// the answer the caller already has, so it is only logged.
func (s *Service) persist(ctx context.Context, question string, resp Response, userID string) {
	if s.conversations == nil {
		return
	}

	record := ConversationRecord{
		ID:         uuid.NewString(),
		Question:   question,
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		Sources:    resp.Sources,
		UserID:     userID,
	}
	if err := s.conversations.Insert(ctx, record); err != nil {
		s.logger.Printf("persist conversation: %v", err)
	}
}

func systemPrompt() string {
	return fmt.Sprintf(`You are a document assistant answering questions from uploaded PDFs.

Follow these rules strictly:

1. Use ONLY the information provided in the context.
2. Cite the source filename and page number for every factual claim, in the form (filename, p. N).
3. If the question requires reasoning, reason only from facts present in the context.
4. If the answer cannot be derived from the context, respond exactly with:
%q
Do not invent facts, names, or numbers that are not present.
Do not assume information that is not present.`, RefusalAnswer)
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	return sb.String()
}
