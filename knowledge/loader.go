package knowledge

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// LoadHTML extracts plain text from an HTML document for indexing. The
// page <title> becomes the document title unless one is given.
func LoadHTML(id, title string, r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Document{}, fmt.Errorf("parse html for %s: %w", id, err)
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find("script, style, noscript").Remove()
	body := doc.Find("body")
	raw := body.Text()
	if body.Length() == 0 {
		raw = doc.Text()
	}

	return Document{
		ID:      id,
		Title:   title,
		Content: collapseWhitespace(raw),
	}, nil
}

// LoadMarkdown extracts plain text from Markdown source: the source is
// rendered to HTML and the tags stripped, so formatting syntax does not
// pollute keyword matching.
func LoadMarkdown(id, title string, src []byte) Document {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	rendered := markdown.ToHTML(src, p, nil)
	text := textPolicy.Sanitize(string(rendered))

	return Document{
		ID:      id,
		Title:   title,
		Content: collapseWhitespace(text),
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
