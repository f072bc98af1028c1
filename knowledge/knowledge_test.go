package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocs() []Document {
	return []Document{
		{ID: "doc_returns", Title: "Return policy", Content: "Items can be returned within 30 days of purchase for a full refund."},
		{ID: "doc_shipping", Title: "Shipping", Content: "Orders ship within 2 business days. International shipping available."},
		{ID: "doc_warranty", Title: "Warranty", Content: "All products carry a two year warranty covering manufacturing defects."},
	}
}

func TestKeywordRetriever_RanksByOverlap(t *testing.T) {
	t.Parallel()

	r := NewKeywordRetriever(testDocs()...)

	docs, err := r.Retrieve(context.Background(), "how do returns and refund work", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "doc_returns", docs[0].ID)
}

func TestKeywordRetriever_RestrictsToDocumentIDs(t *testing.T) {
	t.Parallel()

	r := NewKeywordRetriever(testDocs()...)

	docs, err := r.Retrieve(context.Background(), "shipping warranty refund", []string{"doc_shipping"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc_shipping", docs[0].ID)
}

func TestKeywordRetriever_TopK(t *testing.T) {
	t.Parallel()

	r := NewKeywordRetriever(testDocs()...)

	docs, err := r.Retrieve(context.Background(), "shipping warranty returned refund", nil, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestKeywordRetriever_NoMatch(t *testing.T) {
	t.Parallel()

	r := NewKeywordRetriever(testDocs()...)

	docs, err := r.Retrieve(context.Background(), "quantum chromodynamics", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestKeywordRetriever_Deterministic(t *testing.T) {
	t.Parallel()

	// Two documents with identical scores must order by id.
	r := NewKeywordRetriever(
		Document{ID: "b", Content: "alpha beta"},
		Document{ID: "a", Content: "alpha beta"},
	)

	for i := 0; i < 20; i++ {
		docs, err := r.Retrieve(context.Background(), "alpha", nil, 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)
	}
}

func TestJoinContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, JoinContext(nil))

	joined := JoinContext([]Document{
		{Title: "Shipping", Content: "Ships fast."},
		{Content: "No title here."},
	})
	assert.Equal(t, "Shipping\nShips fast.\n\n---\n\nNo title here.", joined)
}
