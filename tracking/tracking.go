// Package tracking fires the tracking URLs carried by companion ads.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"go2tv.app/castads/admeta"
	"golang.org/x/time/rate"
)

// Companion tracking events as used by VAST.
const (
	EventCreativeView = "creativeView"
	EventClick        = "click"
)

const (
	pingHTTPClientTimeout       = 10 * time.Second
	pingHTTPDialTimeout         = 5 * time.Second
	pingHTTPTLSHandshakeTimeout = 5 * time.Second
	pingHTTPIdleConnTimeout     = 90 * time.Second

	defaultRetries = 2
	defaultRate    = 10 // pings per second
)

var pingHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout: pingHTTPDialTimeout,
	}).DialContext,
	TLSHandshakeTimeout: pingHTTPTLSHandshakeTimeout,
	IdleConnTimeout:     pingHTTPIdleConnTimeout,
}

// Pinger issues GET requests against tracking URLs, paced so a pod full of
// companions does not burst the network.
type Pinger struct {
	client      *http.Client
	limiter     *rate.Limiter
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// NewPinger returns a Pinger retrying each URL up to retries times and
// firing at most perSecond pings per second. Non-positive values pick the
// defaults.
func NewPinger(retries int, perSecond float64) *Pinger {
	if retries <= 0 {
		retries = defaultRetries
	}
	if perSecond <= 0 {
		perSecond = defaultRate
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout:   pingHTTPClientTimeout,
		Transport: pingHTTPTransport,
	}

	return &Pinger{
		client:  retryClient.StandardClient(),
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (p *Pinger) Log() *zerolog.Logger {
	if p.LogOutput != nil {
		p.initLogOnce.Do(func() {
			p.Logger = zerolog.New(p.LogOutput).With().Timestamp().Logger()
		})
	}
	return &p.Logger
}

// Fire pings every URL c lists for event. Failures do not stop the
// remaining pings and are returned joined.
func (p *Pinger) Fire(ctx context.Context, c admeta.AdCompanion, event string) error {
	var errs []error
	for _, u := range c.TrackerURLs(event) {
		if err := p.ping(ctx, u); err != nil {
			p.Log().Warn().Str("Method", "Fire").Str("Event", event).Str("URL", u).Err(err).Msg("tracker ping failed")
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		p.Log().Debug().Str("Method", "Fire").Str("Event", event).Str("URL", u).Msg("tracker pinged")
	}
	return errors.Join(errs...)
}

// FireAll fires event for every companion of meta.
func (p *Pinger) FireAll(ctx context.Context, meta *admeta.AdMeta, event string) error {
	if meta == nil {
		return nil
	}

	var errs []error
	for _, c := range meta.Companions {
		if err := p.Fire(ctx, c, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pinger) ping(ctx context.Context, u string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", u, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("ping %s: %w", u, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", u, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("ping %s: status %d", u, resp.StatusCode)
	}
	return nil
}
