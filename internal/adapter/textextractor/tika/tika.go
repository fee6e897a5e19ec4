// Package tika is a minimal Apache Tika server client used for OCR of scanned
// PDFs and for office formats the native parser cannot read.
// See https://tika.apache.org/server/ for the API.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Buringskul/cv-feedback-bot/pkg/textx"
)

// Client performs PUT /tika with Accept: text/plain.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

const (
	defaultTimeout = 30 * time.Second
	// maxResponseBytes caps the extracted text read back from the server.
	maxResponseBytes = 4 << 20
)

// New constructs a Tika client. A non-positive timeout selects the default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Extract sends data to Tika and returns sanitized plain text. With ocr set,
// Tika is told to rasterize and OCR every PDF page instead of reading its text layer.
func (c *Client) Extract(ctx context.Context, fileName string, data []byte, ocr bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("op=tika.Extract: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if ocr {
		req.Header.Set("X-Tika-PDFOcrStrategy", "ocr_only")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=tika.Extract: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("op=tika.Extract: tika status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("op=tika.Extract: %w", err)
	}
	return textx.SanitizeText(string(b)), nil
}

// Ping checks GET /version.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tika status %d", resp.StatusCode)
	}
	return nil
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case "":
		return ""
	default:
		return mime.TypeByExtension(ext)
	}
}
