package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// Extractor is the keyword-extraction model boundary: text in, ranked key
// phrases out. Used only to build web search queries, so callers must treat
// an empty result as "fall back to raw text", never as an error.
type Extractor interface {
	Extract(ctx context.Context, text string, topN int) ([]string, error)
}

type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(baseLog *logger.Logger, cfg Config) (Extractor, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("keyword extractor url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &client{
		log:  baseLog.With("service", "KeywordClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}, nil
}

type extractRequest struct {
	Text string `json:"text"`
	TopN int    `json:"top_n"`
}

type extractResponse struct {
	Keywords []string `json:"keywords"`
}

func (c *client) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topN <= 0 {
		topN = 20
	}

	body, err := json.Marshal(extractRequest{Text: text, TopN: topN})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyword request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("keyword service returned %d: %s", resp.StatusCode, string(snippet))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode keyword response: %w", err)
	}
	return out.Keywords, nil
}
