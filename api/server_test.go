package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tanmaypaliwal576/OpsMind/api"
	"github.com/tanmaypaliwal576/OpsMind/chat"
)

type stubChatService struct {
	resp      chat.Response
	fragments []string
	err       error
}

func (s *stubChatService) Ask(ctx context.Context, question, userID string) (chat.Response, error) {
	if strings.TrimSpace(question) == "" {
		return chat.Response{}, chat.ErrEmptyQuestion
	}
	if s.err != nil {
		return chat.Response{}, s.err
	}
	return s.resp, nil
}

func (s *stubChatService) AskStream(ctx context.Context, question, userID string, fn func(string) error) (chat.Response, error) {
	if strings.TrimSpace(question) == "" {
		return chat.Response{}, chat.ErrEmptyQuestion
	}
	if s.err != nil {
		return chat.Response{}, s.err
	}
	for _, fragment := range s.fragments {
		if err := fn(fragment); err != nil {
			return chat.Response{}, err
		}
	}
	return s.resp, nil
}

type stubIngestor struct {
	filename string
	size     int
	calls    int
}

func (s *stubIngestor) IngestAsync(filename string, data []byte) {
	s.calls++
	s.filename = filename
	s.size = len(data)
}

type stubDocumentLister struct {
	summaries []chat.DocumentSummary
	err       error
}

func (s *stubDocumentLister) ListDocuments(ctx context.Context) ([]chat.DocumentSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summaries, nil
}

type stubConversationStore struct {
	report chat.AnalyticsReport
	err    error
}

func (s *stubConversationStore) Insert(ctx context.Context, record chat.ConversationRecord) error {
	return nil
}

func (s *stubConversationStore) Analytics(ctx context.Context) (chat.AnalyticsReport, error) {
	if s.err != nil {
		return chat.AnalyticsReport{}, s.err
	}
	return s.report, nil
}

func newTestServer(chatSvc *stubChatService, ingestor *stubIngestor) *api.Server {
	if chatSvc == nil {
		chatSvc = &stubChatService{}
	}
	if ingestor == nil {
		ingestor = &stubIngestor{}
	}
	return api.New(chatSvc, ingestor, &stubDocumentLister{}, &stubConversationStore{}, nil, log.New(io.Discard, "", 0))
}

func postJSON(t *testing.T, server *api.Server, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestChatRequiresQuestion(t *testing.T) {
	server := newTestServer(nil, nil)
	rec := postJSON(t, server, "/api/chat", map[string]string{"question": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatReturnsAnswerAndSources(t *testing.T) {
	server := newTestServer(&stubChatService{
		resp: chat.Response{
			Answer:     "Grounded answer.",
			Confidence: 0.95,
			Sources: []chat.SourceCitation{
				{Filename: "lab.pdf", Page: 2, SimilarityScore: 0.95},
			},
		},
	}, nil)

	rec := postJSON(t, server, "/api/chat", map[string]string{"question": "what?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var parsed struct {
		Answer  string                `json:"answer"`
		Sources []chat.SourceCitation `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.Answer != "Grounded answer." {
		t.Fatalf("unexpected answer: %q", parsed.Answer)
	}
	if len(parsed.Sources) != 1 || parsed.Sources[0].SimilarityScore != 0.95 {
		t.Fatalf("unexpected sources: %+v", parsed.Sources)
	}
}

func TestChatRefusalIsSuccess(t *testing.T) {
	server := newTestServer(&stubChatService{
		resp: chat.Response{
			Answer:  chat.RefusalAnswer,
			Sources: []chat.SourceCitation{},
			Refused: true,
		},
	}, nil)

	rec := postJSON(t, server, "/api/chat", map[string]string{"question": "unknown topic"})
	if rec.Code != http.StatusOK {
		t.Fatalf("refusal must be a 200, got %d", rec.Code)
	}

	var parsed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed["answer"] != chat.RefusalAnswer {
		t.Fatalf("unexpected refusal payload: %v", parsed)
	}
}

func TestChatPipelineErrorIsGeneric(t *testing.T) {
	server := newTestServer(&stubChatService{err: errors.New("pgvector: connection refused to 10.0.0.5")}, nil)

	rec := postJSON(t, server, "/api/chat", map[string]string{"question": "what?"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal error detail leaked: %s", rec.Body.String())
	}
}

func TestChatStreamEmitsChunksThenDone(t *testing.T) {
	server := newTestServer(&stubChatService{
		fragments: []string{"Par", "is is", " the capital."},
		resp: chat.Response{
			Answer: "Paris is the capital.",
			Sources: []chat.SourceCitation{
				{Filename: "geo.pdf", Page: 1, SimilarityScore: 0.93},
			},
		},
	}, nil)

	rec := postJSON(t, server, "/api/chat/stream", map[string]string{"question": "capital?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	var chunks []string
	doneSeen := false
	var doneSources []chat.SourceCitation
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if doneSeen {
			t.Fatal("no events may follow the done marker")
		}
		var event struct {
			Chunk   string                `json:"chunk"`
			Done    bool                  `json:"done"`
			Sources []chat.SourceCitation `json:"sources"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if event.Done {
			doneSeen = true
			doneSources = event.Sources
			continue
		}
		chunks = append(chunks, event.Chunk)
	}

	want := []string{"Par", "is is", " the capital."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunk events, got %d", len(want), len(chunks))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d out of order: %q", i, chunks[i])
		}
	}
	if !doneSeen {
		t.Fatal("expected a terminal done event")
	}
	if len(doneSources) != 1 || doneSources[0].Filename != "geo.pdf" {
		t.Fatalf("unexpected sources on done event: %+v", doneSources)
	}
}

func TestChatStreamErrorBeforeOutputIsJSON(t *testing.T) {
	server := newTestServer(&stubChatService{err: errors.New("upstream down")}, nil)

	rec := postJSON(t, server, "/api/chat/stream", map[string]string{"question": "what?"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 before any fragment, got %d", rec.Code)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(nil, ingestor)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ingestor.calls != 0 {
		t.Fatal("ingestor must not run without a file")
	}
}

func TestUploadAcceptsAndDispatches(t *testing.T) {
	ingestor := &stubIngestor{}
	server := newTestServer(nil, ingestor)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "manual.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 fake body")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ingestor.calls != 1 {
		t.Fatalf("expected one ingest dispatch, got %d", ingestor.calls)
	}
	if ingestor.filename != "manual.pdf" || ingestor.size == 0 {
		t.Fatalf("unexpected dispatch: %q (%d bytes)", ingestor.filename, ingestor.size)
	}
}

func TestAnalyticsReport(t *testing.T) {
	store := &stubConversationStore{report: chat.AnalyticsReport{
		TotalConversations: 12,
		TotalDocuments:     3,
		AverageConfidence:  0.81,
		TopDocuments:       []chat.TopDocument{{Filename: "lab.pdf", Queries: 7}},
	}}
	server := api.New(&stubChatService{}, &stubIngestor{}, &stubDocumentLister{}, store, nil, log.New(io.Discard, "", 0))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var parsed struct {
		TotalConversations int     `json:"totalConversations"`
		TotalDocuments     int     `json:"totalDocuments"`
		AverageConfidence  float64 `json:"averageConfidence"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.TotalConversations != 12 || parsed.TotalDocuments != 3 {
		t.Fatalf("unexpected analytics payload: %+v", parsed)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}
