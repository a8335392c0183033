package pdfsplit

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PageText is the embedded text layer of one page. Scanned pages have none.
type PageText struct {
	Page int
	Text string
}

// PageTexts reads the text layer of every page. It is a local, model-free
// view used for previews and diagnostics; extraction never depends on it.
func PageTexts(data []byte) (texts []PageText, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("%w: text layer: %v", ErrMalformedDocument, r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	n := reader.NumPage()
	texts = make([]PageText, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, PageText{Page: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		texts = append(texts, PageText{Page: i, Text: strings.TrimSpace(text)})
	}
	return texts, nil
}

// Preview returns the first line of text, truncated to n runes.
func (p PageText) Preview(n int) string {
	line, _, _ := strings.Cut(p.Text, "\n")
	line = strings.TrimSpace(line)
	r := []rune(line)
	if len(r) <= n {
		return line
	}
	return string(r[:n]) + "..."
}
