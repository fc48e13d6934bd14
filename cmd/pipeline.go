package cmd

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/parcel-report-pdf/internal/api"
	"github.com/JakeFAU/parcel-report-pdf/internal/config"
	"github.com/JakeFAU/parcel-report-pdf/internal/pdf"
	chromerenderer "github.com/JakeFAU/parcel-report-pdf/internal/renderer/chromedp"
	"github.com/JakeFAU/parcel-report-pdf/internal/renderer/wkhtmltopdf"
	"github.com/JakeFAU/parcel-report-pdf/internal/report"
	collysource "github.com/JakeFAU/parcel-report-pdf/internal/source/colly"
)

// newPipeline is the pipeline factory. It's a variable so tests can swap in a fake.
var newPipeline = buildPipeline

// buildPipeline wires the upstream source, the configured renderer and the re-encoder into a
// report.Fetcher. The returned func releases renderer resources and is never nil.
func buildPipeline(cfg config.Config, logger *zap.Logger) (api.ReportFetcher, func(), error) {
	noop := func() {}

	source := collysource.New(collysource.Config{
		UserAgent:     cfg.Upstream.UserAgent,
		Timeout:       cfg.UpstreamTimeout(),
		RatePerSecond: cfg.Upstream.RatePerSecond,
		MaxBodyBytes:  cfg.Upstream.MaxBodyBytes,
	})

	renderer, closeRenderer, err := buildRenderer(cfg, logger.Named("renderer"))
	if err != nil {
		return nil, noop, err
	}

	fetcher, err := report.New(report.Config{
		URLTemplate: cfg.Upstream.URLTemplate,
		TempDir:     cfg.Renderer.TempDir,
	}, source, renderer, pdf.NewEncoder(), logger.Named("report"))
	if err != nil {
		closeRenderer()
		return nil, noop, fmt.Errorf("init report fetcher: %w", err)
	}

	logger.Info("pipeline ready",
		zap.String("renderer", cfg.Renderer.Kind),
		zap.String("url_template", cfg.Upstream.URLTemplate),
	)
	return fetcher, closeRenderer, nil
}

func buildRenderer(cfg config.Config, logger *zap.Logger) (report.Renderer, func(), error) {
	switch cfg.Renderer.Kind {
	case config.RendererWkhtmltopdf:
		renderer, err := wkhtmltopdf.New(wkhtmltopdf.Config{
			BinaryPath: cfg.Renderer.BinaryPath,
			ExtraArgs:  cfg.Renderer.ExtraArgs,
			Timeout:    cfg.RenderTimeout(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init renderer: %w", err)
		}
		return renderer, func() {}, nil
	case config.RendererChromedp:
		renderer, err := chromerenderer.New(chromerenderer.Config{
			ExecPath:    cfg.Renderer.Chrome.ExecPath,
			MaxParallel: cfg.Renderer.Chrome.MaxParallel,
			Timeout:     cfg.RenderTimeout(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init renderer: %w", err)
		}
		return renderer, renderer.Close, nil
	default:
		return nil, nil, errors.New("unknown renderer kind " + cfg.Renderer.Kind)
	}
}
