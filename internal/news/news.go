// Package news renders gateway news bulletins for a text terminal.
package news

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ReadableHTML flattens bulletin HTML into plain text: tags are
// stripped, block elements become line breaks, and runs of whitespace
// collapse. Input that fails to parse comes back unchanged.
func ReadableHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	doc.Find("script, style").Remove()
	doc.Find("br, p, div, li, tr, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()

	lines := make([]string, 0, 8)
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
