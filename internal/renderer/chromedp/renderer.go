// Package chromerenderer renders HTML files to PDF with headless Chrome.
package chromerenderer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the headless browser.
type Config struct {
	// ExecPath overrides the Chrome binary chromedp discovers on PATH.
	ExecPath string
	// MaxParallel caps concurrent tabs. Zero means unlimited.
	MaxParallel int
	// Timeout bounds one render. Zero waits indefinitely.
	Timeout time.Duration
}

// Renderer implements report.Renderer using chromedp and Page.printToPDF.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a Renderer. One Chrome process is started on the first render and shared by
// every later render, each in its own tab, until Close.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCtx, r.browserCancel = nil, nil
	}
	r.allocCancel()
}

// browser returns the shared browser context, starting Chrome if it is not running. A failed
// start is retried on the next call.
func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil {
		if r.browserCtx.Err() == nil {
			return r.browserCtx, nil
		}
		// Chrome went away; start a new one below.
		r.browserCancel()
		r.browserCtx, r.browserCancel = nil, nil
	}
	if err := r.allocator.Err(); err != nil {
		return nil, fmt.Errorf("renderer closed: %w", err)
	}
	browserCtx, browserCancel := chromedp.NewContext(r.allocator)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.logger.Info("chrome started")
	r.browserCtx, r.browserCancel = browserCtx, browserCancel
	return browserCtx, nil
}

// Render loads inputPath in a new tab of the shared browser and writes the printed PDF to
// outputPath.
func (r *Renderer) Render(ctx context.Context, inputPath, outputPath string) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	target, err := fileURL(inputPath)
	if err != nil {
		return err
	}

	browserCtx, err := r.browser()
	if err != nil {
		return err
	}
	taskCtx, taskCancel := chromedp.NewContext(browserCtx)
	defer taskCancel()
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, r.cfg.Timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	start := time.Now()
	var pdf []byte
	actions := []chromedp.Action{
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = data
			return nil
		}),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	r.logger.Debug("chromedp render finished",
		zap.String("url", target),
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(start)),
	)

	if err := os.WriteFile(outputPath, pdf, 0o600); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve input path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
