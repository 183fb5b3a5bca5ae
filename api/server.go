package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tanmaypaliwal576/OpsMind/chat"
)

// maxUploadBytes caps the multipart memory buffer for PDF uploads.
const maxUploadBytes = 32 << 20

// ChatService is the question-answering pipeline the handlers drive.
type ChatService interface {
	Ask(ctx context.Context, question, userID string) (chat.Response, error)
	AskStream(ctx context.Context, question, userID string, fn func(string) error) (chat.Response, error)
}

// Ingestor accepts an uploaded document and indexes it out-of-band.
type Ingestor interface {
	IngestAsync(filename string, data []byte)
}

// Server exposes the HTTP surface: chat (plain and streaming), uploads,
// document listing and the admin analytics report. All collaborators are
// injected once at construction so tests can substitute fakes.
type Server struct {
	chat          ChatService
	ingest        Ingestor
	documents     chat.DocumentLister
	conversations chat.ConversationStore
	graph         chat.GraphStore
	logger        *log.Logger
	handler       http.Handler
}

func New(chatSvc ChatService, ingestor Ingestor, documents chat.DocumentLister, conversations chat.ConversationStore, graph chat.GraphStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		chat:          chatSvc,
		ingest:        ingestor,
		documents:     documents,
		conversations: conversations,
		graph:         graph,
		logger:        logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/admin/analytics", s.handleAnalytics)
	return mux
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer  string                `json:"answer"`
	Sources []chat.SourceCitation `json:"sources"`
}

type documentInsight struct {
	Uploads int `json:"uploads"`
	Pages   int `json:"pages"`
	Chunks  int `json:"chunks"`
}

type documentResponse struct {
	Filename   string           `json:"filename"`
	Uploads    int              `json:"uploads"`
	LastUpload time.Time        `json:"lastUpload"`
	Insight    *documentInsight `json:"insight,omitempty"`
}

type topDocument struct {
	Filename     string `json:"filename"`
	TotalQueries int    `json:"totalQueries"`
}

type recentQuery struct {
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"createdAt"`
}

type analyticsResponse struct {
	TotalConversations int           `json:"totalConversations"`
	TotalDocuments     int           `json:"totalDocuments"`
	AverageConfidence  float64       `json:"averageConfidence"`
	MostQueried        []topDocument `json:"mostQueriedDocuments"`
	RecentQueries      []recentQuery `json:"recentQueries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.chat.Ask(r.Context(), req.Question, r.Header.Get("X-User-ID"))
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuestion) {
			s.writeError(w, http.StatusBadRequest, "question is required", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "chat failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{Answer: resp.Answer, Sources: resp.Sources})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", fmt.Errorf("response writer is not a flusher"))
		return
	}

	stream := newEventStream(w, flusher)
	headersSent := false

	resp, err := s.chat.AskStream(r.Context(), req.Question, r.Header.Get("X-User-ID"), func(fragment string) error {
		if !headersSent {
			stream.begin()
			headersSent = true
		}
		return stream.sendChunk(fragment)
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuestion) && !headersSent {
			s.writeError(w, http.StatusBadRequest, "question is required", err)
			return
		}
		// Once fragments have gone out there is no clean error signal left;
		// the stream ends without a done marker.
		if !headersSent {
			s.writeError(w, http.StatusInternalServerError, "chat failed", err)
			return
		}
		s.logger.Printf("chat stream aborted: %v", err)
		return
	}

	if !headersSent {
		stream.begin()
	}
	if err := stream.sendDone(resp.Sources); err != nil {
		s.logger.Printf("write done event: %v", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no file uploaded", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read upload", err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "uploaded file is empty", fmt.Errorf("zero-byte upload %s", header.Filename))
		return
	}

	// The request/response cycle does not wait for indexing; progress and
	// failures are visible in the server log only.
	s.ingest.IngestAsync(header.Filename, data)

	s.writeJSON(w, http.StatusAccepted, messageResponse{Message: "upload accepted, indexing in background"})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	summaries, err := s.documents.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list documents", err)
		return
	}

	insights := map[string]chat.DocumentInsight{}
	if s.graph != nil && len(summaries) > 0 {
		names := make([]string, 0, len(summaries))
		for _, summary := range summaries {
			names = append(names, summary.Filename)
		}
		insightMap, insightErr := s.graph.DocumentInsights(r.Context(), names)
		if insightErr != nil {
			s.logger.Printf("graph insights error: %v", insightErr)
		} else {
			insights = insightMap
		}
	}

	payload := make([]documentResponse, 0, len(summaries))
	for _, summary := range summaries {
		doc := documentResponse{
			Filename:   summary.Filename,
			Uploads:    summary.Uploads,
			LastUpload: summary.LastUpload,
		}
		if insight, ok := insights[summary.Filename]; ok {
			doc.Insight = &documentInsight{
				Uploads: insight.Uploads,
				Pages:   insight.Pages,
				Chunks:  insight.Chunks,
			}
		}
		payload = append(payload, doc)
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	report, err := s.conversations.Analytics(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "fetch analytics", err)
		return
	}

	resp := analyticsResponse{
		TotalConversations: report.TotalConversations,
		TotalDocuments:     report.TotalDocuments,
		AverageConfidence:  report.AverageConfidence,
		MostQueried:        make([]topDocument, 0, len(report.TopDocuments)),
		RecentQueries:      make([]recentQuery, 0, len(report.RecentQuestions)),
	}
	for _, top := range report.TopDocuments {
		resp.MostQueried = append(resp.MostQueried, topDocument{Filename: top.Filename, TotalQueries: top.Queries})
	}
	for _, q := range report.RecentQuestions {
		resp.RecentQueries = append(resp.RecentQueries, recentQuery{Question: q.Question, CreatedAt: q.AskedAt})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method not allowed, use %s", allowed), nil)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError sends a short client-facing message; the underlying error only
// reaches the log.
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Printf("api error (%d): %s: %v", status, message, err)
	} else {
		s.logger.Printf("api error (%d): %s", status, message)
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
