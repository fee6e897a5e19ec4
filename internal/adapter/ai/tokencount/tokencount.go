// Package tokencount counts and bounds prompt tokens with tiktoken-go.
//
// BPE ranks are loaded from the embedded offline loader, so counting never
// reaches the network at request time.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[name]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[name] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto names tiktoken knows.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Truncate returns text cut to at most maxTokens tokens for model and whether
// it was cut. maxTokens <= 0 disables truncation. On encoder failure the text
// is cut at roughly four characters per token.
func (c *Counter) Truncate(text, model string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}
	enc, err := c.encoding(model)
	if err != nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text, false
		}
		return strings.ToValidUTF8(text[:limit], ""), true
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return strings.ToValidUTF8(enc.Decode(tokens[:maxTokens]), ""), true
}
