package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var descriptionPolicy = bluemonday.UGCPolicy()

// TruncateText cuts a string to max length, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return text[:maxLen-3] + "..."
	}
	return text[:maxLen]
}

// SanitizeHTML strips unsafe markup from a description before storage.
func SanitizeHTML(html string) string {
	return descriptionPolicy.Sanitize(html)
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html // Fallback to original if parsing fails
	}
	return cleanText(doc.Text())
}

// NormalizeDescription produces the plain-text description scoring
// runs over: sanitized, tag-stripped, whitespace-collapsed.
func NormalizeDescription(raw string) string {
	if !strings.Contains(raw, "<") {
		return cleanText(raw)
	}
	return HTMLToText(SanitizeHTML(raw))
}
