// Package textextractor turns uploaded résumé files into plain text.
//
// PDFs are read natively first and fall back to Tika OCR when the text layer
// is missing or too thin. DOCX goes through Tika. Plain text is sanitized in
// place. Every failure degrades to "" so callers can answer with a placeholder.
package textextractor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor/pdftext"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
	"github.com/Buringskul/cv-feedback-bot/pkg/textx"
)

const (
	kindPDF  = "pdf"
	kindDOCX = "docx"
	kindText = "text"
)

// Tika is the subset of the Tika client used for OCR and DOCX.
type Tika interface {
	Extract(ctx context.Context, fileName string, data []byte, ocr bool) (string, error)
}

// Extractor implements domain.TextExtractor.
type Extractor struct {
	tika           Tika
	nativeMinChars int
	native         func([]byte) (string, error)
}

var _ domain.TextExtractor = (*Extractor)(nil)

// New builds an extractor. tika may be nil, which disables OCR and DOCX.
// Native PDF text of nativeMinChars runes or fewer triggers the OCR fallback.
func New(tika Tika, nativeMinChars int) *Extractor {
	if nativeMinChars < 0 {
		nativeMinChars = 0
	}
	return &Extractor{tika: tika, nativeMinChars: nativeMinChars, native: pdftext.Extract}
}

// Extract returns the document text or "" when nothing usable could be read.
func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	lg := obsctx.LoggerFromContext(ctx)
	switch Kind(fileName, data) {
	case kindPDF:
		return e.extractPDF(ctx, lg, fileName, data)
	case kindDOCX:
		if e.tika == nil {
			observability.RecordExtraction("tika", "skipped")
			return ""
		}
		text, err := e.tika.Extract(ctx, fileName, data, false)
		if err != nil {
			lg.Warn("docx extraction failed", slog.String("file", fileName), slog.Any("error", err))
			observability.RecordExtraction("tika", "error")
			return ""
		}
		observability.RecordExtraction("tika", "ok")
		return text
	case kindText:
		observability.RecordExtraction("plain", "ok")
		return textx.SanitizeText(string(data))
	default:
		observability.RecordExtraction("unsupported", "skipped")
		return ""
	}
}

func (e *Extractor) extractPDF(ctx context.Context, lg *slog.Logger, fileName string, data []byte) string {
	text, err := e.native(data)
	if err == nil && textx.TrimmedLen(text) > e.nativeMinChars {
		observability.RecordExtraction("native", "ok")
		return textx.SanitizeText(text)
	}
	if err != nil {
		lg.Debug("native pdf parse failed", slog.String("file", fileName), slog.Any("error", err))
		observability.RecordExtraction("native", "error")
	} else {
		observability.RecordExtraction("native", "short")
	}

	if e.tika == nil {
		return textx.SanitizeText(text)
	}
	ocr, oerr := e.tika.Extract(ctx, fileName, data, true)
	if oerr != nil {
		lg.Warn("pdf ocr failed", slog.String("file", fileName), slog.Any("error", oerr))
		observability.RecordExtraction("ocr", "error")
		return textx.SanitizeText(text)
	}
	observability.RecordExtraction("ocr", "ok")
	if textx.TrimmedLen(ocr) < textx.TrimmedLen(text) {
		return textx.SanitizeText(text)
	}
	return ocr
}

// Kind classifies an upload as pdf, docx or text by sniffed content, falling
// back to the file extension. Anything else yields "".
func Kind(fileName string, data []byte) string {
	m := mimetype.Detect(data)
	switch {
	case m.Is("application/pdf"):
		return kindPDF
	case m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return kindDOCX
	case strings.HasPrefix(m.String(), "text/plain"):
		return kindText
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return kindPDF
	case ".docx":
		// Generic zip containers are only trusted as DOCX by name.
		if m.Is("application/zip") {
			return kindDOCX
		}
	case ".txt", ".md":
		if strings.HasPrefix(m.String(), "text/") {
			return kindText
		}
	}
	return ""
}
