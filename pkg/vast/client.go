package vast

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrNoAd is returned when an ad server responds successfully but the
// VAST document contains no usable Ad.
var ErrNoAd = errors.New("vast: no ad in response")

// Client fetches and parses VAST documents, chasing Wrapper redirects up
// to a bounded depth. Every outbound request trips the same circuit
// breaker, so a failing ad server stops being hammered after it starts
// timing out.
type Client struct {
	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*VAST]
	MaxWrapperDepth int
}

// NewClient builds a Client. timeout bounds each individual HTTP fetch;
// the caller's context still governs the overall waterfall deadline.
func NewClient(timeout time.Duration, maxWrapperDepth int) *Client {
	settings := gobreaker.Settings{
		Name:    "vast-ad-server",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Client{
		HTTPClient:      &http.Client{Timeout: timeout},
		breaker:         gobreaker.NewCircuitBreaker[*VAST](settings),
		MaxWrapperDepth: maxWrapperDepth,
	}
}

// fetch retrieves and parses a single VAST document at url, through the
// circuit breaker.
func (c *Client) fetch(ctx context.Context, adTagURL string) (*VAST, error) {
	return c.breaker.Execute(func() (*VAST, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, adTagURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("vast: ad server %s returned %d", adTagURL, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		if err != nil {
			return nil, err
		}
		var v VAST
		if err := xml.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("vast: parse %s: %w", adTagURL, err)
		}
		return &v, nil
	})
}

// ResolveInline fetches adTagURL and follows any Wrapper chain to the
// first InLine ad it finds, up to MaxWrapperDepth hops. The waterfall
// above this call is responsible for falling back to a stored pod or
// slate when ResolveInline returns an error.
func (c *Client) ResolveInline(ctx context.Context, adTagURL string) (*InLine, error) {
	seen := adTagURL
	for depth := 0; depth <= c.MaxWrapperDepth; depth++ {
		v, err := c.fetch(ctx, seen)
		if err != nil {
			return nil, err
		}
		inline, wrapperURI, found := firstUsableAd(v)
		if inline != nil {
			return inline, nil
		}
		if !found {
			return nil, ErrNoAd
		}
		seen = wrapperURI
	}
	return nil, fmt.Errorf("vast: exceeded max wrapper depth %d", c.MaxWrapperDepth)
}

// firstUsableAd scans a VAST document's Ads for the first InLine; if none
// is present it returns the first Wrapper's VASTAdTagURI to chase next.
func firstUsableAd(v *VAST) (inline *InLine, wrapperURI string, found bool) {
	for _, ad := range v.Ads {
		if ad.InLine != nil {
			return ad.InLine, "", true
		}
	}
	for _, ad := range v.Ads {
		if ad.Wrapper != nil && ad.Wrapper.VASTAdTagURI.CDATA != "" {
			return nil, ad.Wrapper.VASTAdTagURI.CDATA, true
		}
	}
	return nil, "", false
}

// LogFetchFailure logs a VAST fetch failure the way origin fetches are
// logged elsewhere in this gateway: structured, at Warn, never fatal.
func LogFetchFailure(adTagURL string, err error) {
	slog.Warn("vast ad fetch failed", "url", adTagURL, "error", err)
}
