//go:build e2e

package e2e_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return getenv("E2E_BASE_URL", "http://localhost:8080") }

func httpClient() *http.Client { return &http.Client{Timeout: 120 * time.Second} }

// postAnalyze uploads content as a multipart "file" with an optional role.
func postAnalyze(t *testing.T, fileName string, content []byte, role string) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if role != "" {
		require.NoError(t, w.WriteField("role", role))
	}
	fw, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL()+"/api/analyze", buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if tok := os.Getenv("E2E_BEARER_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := httpClient().Do(req)
	require.NoError(t, err)
	return resp
}
