package knowledge

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// readDocx returns the text of the document's top-level paragraphs. Blank
// paragraphs are skipped and the rest are joined with newlines.
func readDocx(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if s := p.String(); strings.TrimSpace(s) != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	if len(paragraphs) == 0 {
		return "", fmt.Errorf("%s: document has no text", path)
	}
	return strings.Join(paragraphs, "\n"), nil
}
