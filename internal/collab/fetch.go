package collab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	logx "joinmotd/pkg/logx"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultMaxBody      = 64 << 10
)

type FetchConfig struct {
	Timeout time.Duration
	// RatePerSec and Burst bound outgoing requests. RatePerSec <= 0 disables
	// limiting.
	RatePerSec float64
	Burst      int
	MaxBody    int64
	UserAgent  string
}

// HTTPFetcher serves %api:<url>% and fetched variables.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
	ua      string
	log     logx.Logger
}

func NewHTTPFetcher(cfg FetchConfig, log logx.Logger) *HTTPFetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		maxBody: cfg.MaxBody,
		ua:      cfg.UserAgent,
		log:     log.With(logx.String("comp", "fetch")),
	}
	if cfg.RatePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(cfg.Burst, 1))
	}
	return f
}

// FetchText GETs url and returns at most MaxBody bytes of the body. Non-2xx
// responses are errors.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("fetch %s: %w", url, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	f.log.Debug("fetched", logx.String("url", url), logx.Int("status", resp.StatusCode), logx.Int("bytes", len(body)), logx.Duration("took", time.Since(start)))
	return string(body), nil
}
