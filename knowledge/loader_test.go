package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHTML(t *testing.T) {
	t.Parallel()

	html := `<html>
		<head><title>Return policy</title><style>p { color: red }</style></head>
		<body>
			<script>alert("ignored")</script>
			<h1>Returns</h1>
			<p>Items can be returned within <b>30 days</b>.</p>
		</body>
	</html>`

	doc, err := LoadHTML("doc_1", "", strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "doc_1", doc.ID)
	assert.Equal(t, "Return policy", doc.Title)
	assert.Contains(t, doc.Content, "Items can be returned within 30 days.")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "color: red")
}

func TestLoadHTML_ExplicitTitleWins(t *testing.T) {
	t.Parallel()

	doc, err := LoadHTML("doc_1", "Custom", strings.NewReader("<title>Page</title><body>Text</body>"))
	require.NoError(t, err)
	assert.Equal(t, "Custom", doc.Title)
}

func TestLoadMarkdown(t *testing.T) {
	t.Parallel()

	src := []byte("# Shipping\n\nOrders ship within **2 business days**.\n\n- tracked\n- insured\n")
	doc := LoadMarkdown("doc_2", "Shipping", src)

	assert.Equal(t, "doc_2", doc.ID)
	assert.Contains(t, doc.Content, "Orders ship within 2 business days.")
	assert.NotContains(t, doc.Content, "**")
	assert.NotContains(t, doc.Content, "#")
}
