// Package knowledge implements the document-retrieval collaborator used by
// knowledgeBase nodes. The engine hands it the node's selected documents
// and the user's latest message; the retrieved context is injected into the
// next ai node's prompt through user data.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// ContextVariable is the reserved user-data key retrieved context is stored
// under. The next ai node's system prompt can reference it with
// #{_kb_context}.
const ContextVariable = "_kb_context"

// Document is one indexed knowledge-base document.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Retriever finds documents relevant to a query, limited to the given
// document ids (all documents when empty).
type Retriever interface {
	Retrieve(ctx context.Context, query string, documentIDs []string, topK int) ([]Document, error)
}

// KeywordRetriever is an in-memory Retriever ranking documents by keyword
// overlap with the query. It is deterministic: equal scores order by
// document id.
type KeywordRetriever struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Retriever = (*KeywordRetriever)(nil)

// NewKeywordRetriever creates a retriever over the given documents.
func NewKeywordRetriever(docs ...Document) *KeywordRetriever {
	r := &KeywordRetriever{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

// Add indexes or replaces a document.
func (r *KeywordRetriever) Add(doc Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

// Retrieve returns up to topK documents scored by query-term overlap.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, documentIDs []string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 3
	}
	terms := tokenize(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]Document, 0, len(r.docs))
	if len(documentIDs) > 0 {
		for _, id := range documentIDs {
			if d, ok := r.docs[id]; ok {
				candidates = append(candidates, d)
			}
		}
	} else {
		for _, d := range r.docs {
			candidates = append(candidates, d)
		}
	}

	type scored struct {
		doc   Document
		score int
	}
	var results []scored
	for _, d := range candidates {
		s := score(terms, d)
		if s > 0 {
			results = append(results, scored{doc: d, score: s})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].doc.ID < results[j].doc.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]Document, len(results))
	for i, r := range results {
		out[i] = r.doc
	}
	return out, nil
}

func score(terms []string, doc Document) int {
	haystack := strings.ToLower(doc.Title + " " + doc.Content)
	n := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return n
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 { // skip stop-ish short tokens
			out = append(out, f)
		}
	}
	return out
}

// JoinContext renders retrieved documents into the single context string
// stored under ContextVariable.
func JoinContext(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Title != "" {
			parts = append(parts, d.Title+"\n"+d.Content)
		} else {
			parts = append(parts, d.Content)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}
