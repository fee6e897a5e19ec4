package textextractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/textextractor/pdftext/pdftexttest"
)

type tikaCall struct {
	file string
	ocr  bool
}

type fakeTika struct {
	text  string
	err   error
	calls []tikaCall
}

func (f *fakeTika) Extract(_ context.Context, fileName string, _ []byte, ocr bool) (string, error) {
	f.calls = append(f.calls, tikaCall{file: fileName, ocr: ocr})
	return f.text, f.err
}

const longLine = "Senior backend engineer with eight years of Go and Postgres experience"

func TestExtract_PlainText(t *testing.T) {
	e := New(nil, 50)
	got := e.Extract(context.Background(), "cv.txt", []byte("  Jane Roe\nEngineer \n"))
	assert.Equal(t, "Jane Roe\nEngineer", got)
}

func TestExtract_Empty(t *testing.T) {
	tk := &fakeTika{text: "ignored"}
	e := New(tk, 50)
	assert.Equal(t, "", e.Extract(context.Background(), "cv.pdf", nil))
	assert.Empty(t, tk.calls)
}

func TestExtract_NativePDF(t *testing.T) {
	tk := &fakeTika{text: "ocr text"}
	e := New(tk, 50)
	got := e.Extract(context.Background(), "cv.pdf", pdftexttest.BuildPDF(longLine))
	assert.Contains(t, got, "Senior backend engineer")
	assert.Empty(t, tk.calls, "a rich text layer must not hit OCR")
}

func TestExtract_ShortNativeFallsBackToOCR(t *testing.T) {
	tk := &fakeTika{text: "OCR recovered " + longLine}
	e := New(tk, 50)
	got := e.Extract(context.Background(), "scan.pdf", pdftexttest.BuildPDF("Jane"))
	assert.Equal(t, tk.text, got)
	require.Len(t, tk.calls, 1)
	assert.True(t, tk.calls[0].ocr)
}

func TestExtract_BrokenPDFUsesOCR(t *testing.T) {
	tk := &fakeTika{text: longLine}
	e := New(tk, 50)
	e.native = func([]byte) (string, error) { return "", errors.New("bad xref") }
	got := e.Extract(context.Background(), "cv.pdf", []byte("%PDF-1.7\n garbage"))
	assert.Equal(t, longLine, got)
	require.Len(t, tk.calls, 1)
	assert.True(t, tk.calls[0].ocr)
}

func TestExtract_OCRFailureKeepsNativeText(t *testing.T) {
	tk := &fakeTika{err: errors.New("tika down")}
	e := New(tk, 50)
	got := e.Extract(context.Background(), "cv.pdf", pdftexttest.BuildPDF("Jane Roe"))
	assert.Equal(t, "Jane Roe", strings.TrimSpace(got))
}

func TestExtract_PDFWithoutTika(t *testing.T) {
	e := New(nil, 50)
	e.native = func([]byte) (string, error) { return "", errors.New("encrypted") }
	assert.Equal(t, "", e.Extract(context.Background(), "cv.pdf", []byte("%PDF-1.4\n")))
}

func TestExtract_Unsupported(t *testing.T) {
	tk := &fakeTika{text: "x"}
	e := New(tk, 50)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "", e.Extract(context.Background(), "photo.png", png))
	assert.Empty(t, tk.calls)
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"pdf by content", "x.bin", pdftexttest.BuildPDF("a"), kindPDF},
		{"text by content", "cv", []byte("plain words"), kindText},
		{"pdf by extension", "cv.PDF", []byte{0x00, 0x01, 0x02}, kindPDF},
		{"zip named docx", "cv.docx", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), kindDOCX},
		{"zip not named docx", "cv.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), ""},
		{"binary", "cv.exe", []byte{0x00, 0x01, 0x02, 0x03}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.file, tt.data))
		})
	}
}
