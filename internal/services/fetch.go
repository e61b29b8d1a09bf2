package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veritext/veritext-backend/internal/pkg/httpx"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// SourceFetcher downloads material bytes from their source URL. Object
// storage is an external collaborator reached only through signed or public
// URLs, so a plain GET with retry is the whole contract.
type SourceFetcher struct {
	log   *logger.Logger
	fetch *httpx.Fetcher
}

func NewSourceFetcher(baseLog *logger.Logger, timeout time.Duration, retries int) *SourceFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 0 {
		retries = 2
	}
	f := httpx.NewFetcher(timeout, retries)
	// Source documents can be large; web-page caps do not apply here.
	f.MaxBody = 64 << 20
	return &SourceFetcher{
		log:   baseLog.With("service", "SourceFetcher"),
		fetch: f,
	}
}

func (s *SourceFetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apierr.InvalidInput("source url %q is not a valid http(s) url", rawURL)
	}
	body, err := s.fetch.Get(ctx, rawURL)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("download source %s: %w", rawURL, err))
	}
	if len(body) == 0 {
		return nil, apierr.Network(fmt.Errorf("source %s returned an empty body", rawURL))
	}
	return body, nil
}
