// Package knowledge is an in-memory keyword knowledge base loaded from
// markdown files.
package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"conductor/internal/domain"
)

const snippetRunes = 240

// Document is one entry of the knowledge base.
type Document struct {
	ID     string
	Title  string
	Tags   []string
	Body   string
	Source string
}

type frontMatter struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Store holds documents in memory and answers keyword queries.
// It implements domain.KnowledgeBase.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]Document
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{docs: make(map[string]Document), logger: logger}
}

// Add inserts or replaces a document by id.
func (s *Store) Add(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}
	s.mu.Lock()
	s.docs[doc.ID] = doc
	s.mu.Unlock()
	return nil
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// LoadDir adds every .md file under dir. Files that fail to parse are
// skipped with a warning. Returns the number of documents loaded.
func (s *Store) LoadDir(dir string) (int, error) {
	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := parseDocument(data)
		if err != nil {
			s.logger.Warn("skipping knowledge document", "path", path, "error", err)
			return nil
		}
		if doc.ID == "" {
			rel, _ := filepath.Rel(dir, path)
			doc.ID = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
		}
		doc.Source = path
		if err := s.Add(doc); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("load knowledge dir %s: %w", dir, err)
	}
	s.logger.Info("knowledge documents loaded", "dir", dir, "count", loaded)
	return loaded, nil
}

// parseDocument splits optional YAML front matter from the markdown body.
func parseDocument(data []byte) (Document, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return Document{Body: strings.TrimSpace(content), Title: firstHeading(content)}, nil
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Document{}, fmt.Errorf("front matter is not terminated")
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Document{}, fmt.Errorf("parse front matter: %w", err)
	}
	body := strings.TrimSpace(strings.TrimPrefix(rest[end+4:], "\n"))
	title := fm.Title
	if title == "" {
		title = firstHeading(body)
	}
	return Document{ID: fm.ID, Title: title, Tags: fm.Tags, Body: body}, nil
}

func firstHeading(md string) string {
	for _, line := range strings.Split(md, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// Search scores documents against the query keywords: a tag hit counts 3,
// a title hit 2 and every body occurrence 1. Ties break on id.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keywords := tokenize(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	results := make([]domain.KnowledgeResult, 0)
	for _, doc := range s.docs {
		score := scoreDocument(doc, keywords)
		if score == 0 {
			continue
		}
		results = append(results, domain.KnowledgeResult{
			ID:      doc.ID,
			Title:   doc.Title,
			Snippet: snippet(doc.Body, keywords),
			Source:  doc.Source,
			Tags:    doc.Tags,
			Score:   score,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// tokenize lowercases s into unique keywords of two or more characters.
func tokenize(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()[]{}")
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func scoreDocument(doc Document, keywords []string) float64 {
	title := strings.ToLower(doc.Title)
	body := strings.ToLower(doc.Body)
	var score float64
	for _, kw := range keywords {
		for _, tag := range doc.Tags {
			if strings.EqualFold(tag, kw) {
				score += 3
				break
			}
		}
		if strings.Contains(title, kw) {
			score += 2
		}
		score += float64(strings.Count(body, kw))
	}
	return score
}

// snippet returns the text around the first keyword hit.
func snippet(body string, keywords []string) string {
	lower := strings.ToLower(body)
	at := -1
	for _, kw := range keywords {
		if i := strings.Index(lower, kw); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	runes := []rune(body)
	start := 0
	if at > 0 {
		start = max(len([]rune(body[:at]))-snippetRunes/4, 0)
	}
	end := min(start+snippetRunes, len(runes))
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}
