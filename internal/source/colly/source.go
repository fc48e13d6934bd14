// Package collysource fetches report HTML from the upstream API using gocolly.
package collysource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// ErrEmptyBody is returned when the upstream answers 2xx with no content.
var ErrEmptyBody = errors.New("empty report body")

// ErrBodyTooLarge is returned when the response exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("report body exceeds size limit")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds one request. Zero disables the timeout.
	Timeout time.Duration
	// RatePerSecond caps outbound requests. Zero or less disables limiting.
	RatePerSecond float64
	// MaxBodyBytes caps the response body. Larger bodies fail with ErrBodyTooLarge.
	// Zero means unlimited.
	MaxBodyBytes int
}

// Source implements report.Source using the Colly collector.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *rate.Limiter
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source.
func New(cfg Config) *Source {
	c := colly.NewCollector(colly.Async(false))
	// The endpoint is fixed and the same report may be requested many times.
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	// colly truncates silently at MaxBodySize; one extra byte makes an oversized body detectable.
	c.MaxBodySize = 0
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes + 1
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Source{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}
}

// Fetch performs a single GET and returns the body decoded as text.
// Any non-2xx response or an empty body is an error.
func (s *Source) Fetch(ctx context.Context, url string) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var (
		body     string
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	collector.Context = ctx
	s.configureCollectorHooks(collector, &body, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", err
	}
	if body == "" {
		return "", ErrEmptyBody
	}
	return body, nil
}

func (s *Source) configureCollectorHooks(hooks collectorHooks, body *string, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		if limit := s.cfg.MaxBodyBytes; limit > 0 && len(r.Body) > limit {
			*fetchErr = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
			return
		}
		*body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("upstream status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The request carries ctx, so Visit unwinds promptly.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("colly fetch canceled: %w", ctxErr)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
