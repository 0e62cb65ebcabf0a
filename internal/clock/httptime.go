package clock

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource reads authoritative time from the Date header of an HTTP
// endpoint. Any well-behaved server works; the default target is expected to
// sit close to a stratum time source.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource points at url, e.g. "https://time.cloudflare.com".
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	raw := resp.Header.Get("Date")
	if raw == "" {
		return time.Time{}, fmt.Errorf("time source %s sent no Date header", s.url)
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header: %w", err)
	}
	return t, nil
}
