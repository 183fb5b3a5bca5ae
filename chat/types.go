package chat

import "time"

// ChunkResult is one scored nearest-neighbor candidate. It lives only for
// the duration of a single query.
type ChunkResult struct {
	Filename   string
	PageNumber int
	Content    string
	Score      float64
}

// SourceCitation is the deduplicated (filename, page) view of candidates
// attached to an answer. The JSON shape is also what gets persisted with
// the conversation record.
type SourceCitation struct {
	Filename        string  `json:"filename"`
	Page            int     `json:"page"`
	SimilarityScore float64 `json:"similarityScore"`
}

type Response struct {
	Answer     string
	Confidence float64
	Sources    []SourceCitation
	Refused    bool
}

// ConversationRecord is the immutable audit row written after an exchange.
type ConversationRecord struct {
	ID         string
	Question   string
	Answer     string
	Confidence float64
	Sources    []SourceCitation
	UserID     string
	CreatedAt  time.Time
}

// DocumentInsight summarizes what the graph mirror knows about one
// filename across all of its uploads.
type DocumentInsight struct {
	Uploads int
	Pages   int
	Chunks  int
}

type DocumentSummary struct {
	Filename   string
	Uploads    int
	LastUpload time.Time
}

type TopDocument struct {
	Filename string
	Queries  int
}

type RecentQuestion struct {
	Question string
	AskedAt  time.Time
}

type AnalyticsReport struct {
	TotalConversations int
	TotalDocuments     int
	AverageConfidence  float64
	TopDocuments       []TopDocument
	RecentQuestions    []RecentQuestion
}
