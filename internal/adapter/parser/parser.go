package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"em-backend/internal/domain"

	"golang.org/x/net/html"
)

// skippedElements are HTML elements whose text never belongs in a document
// body.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"nav":      true,
	"footer":   true,
}

// blockElements get a paragraph break when flattened to text.
var blockElements = map[string]bool{
	"p":          true,
	"div":        true,
	"section":    true,
	"article":    true,
	"li":         true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"blockquote": true,
	"br":         true,
	"tr":         true,
}

// ExtractText converts an uploaded file into plain text ready for chunking.
// Plain text and markdown pass through unchanged; HTML is flattened.
// Unsupported extensions are rejected with ErrInvalidRequest.
func ExtractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown":
		return string(data), nil
	case ".html", ".htm":
		return extractHTML(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidRequest, filepath.Ext(filename))
	}
}

func extractHTML(data []byte) (string, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteString("\n\n")
		}
	}
	walk(root)

	return collapseBlankLines(b.String()), nil
}

// collapseBlankLines normalizes runs of blank lines down to single paragraph
// breaks and trims trailing space on each line.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
