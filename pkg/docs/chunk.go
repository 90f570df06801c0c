package docs

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

var (
	frontmatterPattern = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n?`)
	titlePattern       = regexp.MustCompile(`(?m)^title:\s*(.+?)\s*$`)
	importPattern      = regexp.MustCompile(`(?m)^import .+$`)
	paragraphPattern   = regexp.MustCompile(`\n{2,}`)
)

// ExtractTitle returns the frontmatter title of an MDX/markdown page.
func ExtractTitle(text string) string {
	text = normalizeNewlines(text)
	fm := frontmatterPattern.FindStringSubmatch(text)
	if fm == nil {
		return "Unknown"
	}
	m := titlePattern.FindStringSubmatch(fm[1])
	if m == nil {
		return "Unknown"
	}
	return strings.Trim(m[1], `"'`)
}

// Clean strips frontmatter and MDX import lines.
func Clean(text string) string {
	text = normalizeNewlines(text)
	text = frontmatterPattern.ReplaceAllString(text, "")
	text = importPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Chunk splits text into overlapping chunks on paragraph boundaries. When a
// chunk would exceed size it is closed and the next one starts with the
// last overlap characters of the closed chunk.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	var current string
	for _, para := range paragraphPattern.Split(text, -1) {
		if current != "" && len(current)+len(para)+2 > size {
			chunks = append(chunks, strings.TrimSpace(current))
			if overlap > 0 {
				current = tail(current, overlap) + "\n\n" + para
			} else {
				current = para
			}
			continue
		}
		if current == "" {
			current = para
		} else {
			current += "\n\n" + para
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
