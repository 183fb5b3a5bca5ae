package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPages returns the text content of each page in reading order,
// index 0 holding page 1. Pages without extractable text come back as empty
// strings; a parse failure aborts the whole document.
func ExtractPages(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		pages = append(pages, normalizePageText(text))
	}

	return pages, nil
}

// normalizePageText collapses runs of whitespace into single spaces, the
// same shape the extractor's word stream would have if joined directly.
func normalizePageText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
