package plagiarism

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageText pulls readable text out of a fetched web page. It leans toward
// recall over precision: plagiarized passages routinely land in list items,
// blockquotes or headings, so the extractor walks all common content tags
// rather than guessing a single main column.
func PageText(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe, svg").Remove()

	var parts []string
	push := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}

	doc.Find("article, main").Each(func(_ int, sel *goquery.Selection) {
		push(sel.Text())
	})
	if len(parts) == 0 {
		doc.Find("p, li, blockquote, td, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
			push(sel.Text())
		})
	}
	if len(parts) == 0 {
		push(doc.Find("body").Text())
	}

	return collapseBlankRuns(strings.Join(parts, "\n"))
}

// collapseBlankRuns trims each line and squeezes runs of blank lines so the
// downstream chunker sees clean paragraph breaks.
func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}

// capWords truncates text to at most n whitespace-separated words.
func capWords(text string, n int) string {
	if n <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= n {
		return text
	}
	return strings.Join(fields[:n], " ")
}
