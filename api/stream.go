package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tanmaypaliwal576/OpsMind/chat"
)

// eventStream frames chat output as server-sent events: one
// `data: {"chunk": ...}` line per fragment, then a terminal
// `data: {"done": true, "sources": [...]}`. Every event is flushed
// immediately so the client sees fragments as they arrive.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

type chunkEvent struct {
	Chunk string `json:"chunk"`
}

type doneEvent struct {
	Done    bool                  `json:"done"`
	Sources []chat.SourceCitation `json:"sources"`
}

func newEventStream(w http.ResponseWriter, flusher http.Flusher) *eventStream {
	return &eventStream{w: w, flusher: flusher}
}

func (s *eventStream) begin() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *eventStream) sendChunk(fragment string) error {
	return s.send(chunkEvent{Chunk: fragment})
}

func (s *eventStream) sendDone(sources []chat.SourceCitation) error {
	if sources == nil {
		sources = []chat.SourceCitation{}
	}
	return s.send(doneEvent{Done: true, Sources: sources})
}

func (s *eventStream) send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
