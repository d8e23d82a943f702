// Package document turns uploaded bodies into plain text and splits it into
// chunks for indexing. Binary formats (PDF, DOCX, images) need an external
// converter and are rejected here.
package document

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"study-planner/internal/apperr"
)

// DefaultChunkSize is the soft upper bound, in bytes, of a chunk.
const DefaultChunkSize = 800

// ToText returns the plain text of body according to its content type.
// An empty content type is treated as text/plain.
func ToText(contentType string, body []byte) (string, error) {
	mediaType := "text/plain"
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", apperr.Validation("content type %q: %v", contentType, err)
		}
		mediaType = mt
	}

	switch mediaType {
	case "text/plain", "text/markdown", "text/x-markdown":
		if !utf8.Valid(body) {
			return "", apperr.Validation("document is not valid UTF-8")
		}
		return strings.TrimSpace(string(body)), nil
	case "text/html", "application/xhtml+xml":
		return htmlText(body)
	default:
		return "", apperr.Validation("unsupported content type %q", mediaType)
	}
}

// htmlText extracts readable text keeping one line per block element.
func htmlText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", apperr.Validation("parse html: %v", err)
	}

	skipTags := map[string]bool{
		"script": true, "style": true, "nav": true,
		"noscript": true, "iframe": true, "head": true,
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "tr", "table":
				sb.WriteString("\n")
			}
		}
	}
	extract(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Chunk splits text on sentence boundaries into pieces of at most max bytes.
// A single sentence longer than max is cut on word boundaries.
func Chunk(text string, max int) []string {
	if max <= 0 {
		max = DefaultChunkSize
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, sentence := range sentences(text) {
		if len(sentence) > max {
			flush()
			chunks = append(chunks, splitWords(sentence, max)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	flush()
	return chunks
}

// sentences splits after '.', '!' or '?' followed by whitespace, and on blank lines.
func sentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		fields := strings.Fields(para)
		start := 0
		for i, f := range fields {
			if strings.HasSuffix(f, ".") || strings.HasSuffix(f, "!") || strings.HasSuffix(f, "?") || i == len(fields)-1 {
				out = append(out, strings.Join(fields[start:i+1], " "))
				start = i + 1
			}
		}
	}
	return out
}

func splitWords(sentence string, max int) []string {
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(sentence) {
		for len(w) > max {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, w[:max])
			w = w[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
