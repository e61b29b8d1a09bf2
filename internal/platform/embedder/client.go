package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veritext/veritext-backend/internal/pkg/vecmath"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// Client is the embedding model boundary. The model is a black box that maps
// text to a fixed-dimension vector, deterministic per model version. Vectors
// come back L2-normalized so cosine similarity is a plain dot product.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Dim() int
}

// The serving model follows the e5 convention: documents are embedded as
// "passage: ..." and queries as "query: ...". Mixing the two degrades
// retrieval quality, so callers go through these helpers.
func PassageInput(text string) string { return "passage: " + text }
func QueryInput(text string) string   { return "query: " + text }

type Config struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Dim     int           `yaml:"dim"`
	Timeout time.Duration `yaml:"timeout"`
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(baseLog *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("embedder url is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedder dim must be positive, got %d", cfg.Dim)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:  baseLog.With("service", "EmbedderClient", "model", cfg.Model),
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (c *client) Dim() int { return c.cfg.Dim }

type embedRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Inputs: clean})
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
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(snippet))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embeddings) != len(clean) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d inputs, got %d vectors", len(clean), len(out.Embeddings))
	}
	for i, vec := range out.Embeddings {
		if len(vec) != c.cfg.Dim {
			return nil, fmt.Errorf("embedding %d has dim %d, expected %d", i, len(vec), c.cfg.Dim)
		}
		vecmath.Normalize(vec)
	}
	return out.Embeddings, nil
}
