// Package pdftext reads the embedded text layer of a PDF in process.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF parses but carries no text layer.
var ErrNoText = errors.New("no text content found in PDF")

// Extract returns the concatenated plain text of every page. Malformed input
// yields an error; parser panics are recovered.
func Extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("op=pdftext.Extract: parser panic: %v", r)
		}
	}()
	if len(data) == 0 {
		return "", fmt.Errorf("op=pdftext.Extract: %w", ErrNoText)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("op=pdftext.Extract: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(t)
		sb.WriteString("\n\n")
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("op=pdftext.Extract: %w", ErrNoText)
	}
	return out, nil
}
