// Package export turns generated content into spreadsheets and plain text.
package export

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// PlainText flattens an HTML fragment to text, one block element per line.
// Text without markup is returned trimmed.
func PlainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, div, blockquote, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ArticleText extracts the readable body of a full HTML article, falling
// back to PlainText when no article can be found
func ArticleText(html string) string {
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}
	return PlainText(html)
}

// isHTMLField reports whether a content field holds markup
func isHTMLField(key string) bool {
	return strings.HasSuffix(key, "_html") || key == articleField
}
