package domain

import "context"

// KnowledgeResult is one hit from a knowledge base search.
type KnowledgeResult struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Source  string   `json:"source,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Score   float64  `json:"score"`
}

// KnowledgeBase answers free-text queries against a document corpus.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, limit int) ([]KnowledgeResult, error)
}
