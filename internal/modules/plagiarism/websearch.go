package plagiarism

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/veritext/veritext-backend/internal/pkg/httpx"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// Searcher turns a query into an ordered list of candidate result URLs.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]string, error)
}

type SearchConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
	// MinInterval spaces consecutive queries to stay under the provider's
	// informal rate expectations.
	MinInterval time.Duration `yaml:"minInterval"`
}

const defaultSearchBaseURL = "https://lite.duckduckgo.com/lite/"

// DuckDuckGoClient scrapes the DuckDuckGo Lite HTML endpoint. Lite serves a
// plain result table whose anchors point at a redirect URL carrying the real
// target in the uddg query parameter.
type DuckDuckGoClient struct {
	log     *logger.Logger
	cfg     SearchConfig
	fetch   *httpx.Fetcher
	limiter *rate.Limiter
}

func NewDuckDuckGoClient(baseLog *logger.Logger, cfg SearchConfig) *DuckDuckGoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSearchBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	return &DuckDuckGoClient{
		log:     baseLog.With("service", "DuckDuckGoClient"),
		cfg:     cfg,
		fetch:   httpx.NewFetcher(cfg.Timeout, cfg.Retries),
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

func (c *DuckDuckGoClient) Search(ctx context.Context, query string, max int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || max <= 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.cfg.BaseURL + "?q=" + url.QueryEscape(query)
	body, err := c.fetch.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}

	urls, err := parseResultLinks(body)
	if err != nil {
		return nil, err
	}
	if len(urls) > max {
		urls = urls[:max]
	}
	c.log.Debug("Search results", "query", query, "urls", len(urls))
	return urls, nil
}

// parseResultLinks keeps document order and drops duplicate targets.
func parseResultLinks(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		target := resolveResultHref(href)
		if target == "" {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		out = append(out, target)
	})
	return out, nil
}

func resolveResultHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	// Redirect-style result link: the real target rides in uddg.
	if target := u.Query().Get("uddg"); target != "" {
		if tu, err := url.Parse(target); err == nil && (tu.Scheme == "http" || tu.Scheme == "https") {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	// Skip the provider's own navigation links.
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		return ""
	}
	return u.String()
}
