package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parcel-report-pdf/internal/metrics"
	"github.com/JakeFAU/parcel-report-pdf/internal/parcel"
)

// RefPlaceholder marks where the parcel reference goes in Config.URLTemplate.
const RefPlaceholder = "{ref}"

// DefaultURLTemplate points at the Consell de Mallorca SIT report endpoint.
const DefaultURLTemplate = "https://api.conselldemallorca.net/sit-api/parcelas/{ref}/informeHTML"

const (
	inputName  = "report.html"
	outputName = "report.pdf"
)

// Config controls the pipeline.
type Config struct {
	// URLTemplate must contain RefPlaceholder exactly where the reference belongs.
	URLTemplate string
	// TempDir is the parent for per-call scratch directories. Empty means os.TempDir().
	TempDir string
}

// Fetcher runs the fetch → render → re-encode pipeline.
type Fetcher struct {
	cfg      Config
	source   Source
	renderer Renderer
	encoder  Encoder
	logger   *zap.Logger
}

// New builds a Fetcher. All collaborators are required.
func New(cfg Config, source Source, renderer Renderer, encoder Encoder, logger *zap.Logger) (*Fetcher, error) {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if !strings.Contains(cfg.URLTemplate, RefPlaceholder) {
		return nil, fmt.Errorf("url template %q must contain %s", cfg.URLTemplate, RefPlaceholder)
	}
	if source == nil || renderer == nil || encoder == nil {
		return nil, errors.New("source, renderer and encoder are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:      cfg,
		source:   source,
		renderer: renderer,
		encoder:  encoder,
		logger:   logger,
	}, nil
}

// URL returns the upstream report URL for ref.
func (f *Fetcher) URL(ref parcel.Reference) string {
	return strings.ReplaceAll(f.cfg.URLTemplate, RefPlaceholder, url.PathEscape(ref.String()))
}

// Fetch produces the PDF report for ref. Any failure yields no document; the returned error
// wraps one of ErrFetch, ErrRender or ErrUnexpected, or parcel.ErrInvalidReference when ref
// is rejected before anything leaves the process.
func (f *Fetcher) Fetch(ctx context.Context, ref parcel.Reference) (Document, error) {
	if err := ref.Validate(); err != nil {
		metrics.ObserveReport(metrics.OutcomeInvalidReference, 0)
		return Document{}, fmt.Errorf("validate reference: %w", err)
	}

	logger := f.logger.With(zap.String("ref", ref.String()))
	start := time.Now()

	data, err := f.run(ctx, ref, logger)
	if err != nil {
		f.logFailure(logger, err)
		metrics.ObserveReport(outcomeFor(err), 0)
		return Document{}, err
	}

	metrics.ObserveReport(metrics.OutcomeSuccess, len(data))
	logger.Info("report generated",
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return Document{Reference: ref, Data: data}, nil
}

func (f *Fetcher) run(ctx context.Context, ref parcel.Reference, logger *zap.Logger) ([]byte, error) {
	reportURL := f.URL(ref)

	stageStart := time.Now()
	html, err := f.source.Fetch(ctx, reportURL)
	metrics.ObserveStage(metrics.StageFetch, time.Since(stageStart))
	if err != nil {
		return nil, newError(ErrFetch, ref, fmt.Errorf("fetch %s: %w", reportURL, err))
	}
	logger.Debug("report html fetched", zap.String("url", reportURL), zap.Int("bytes", len(html)))

	workDir, err := os.MkdirTemp(f.cfg.TempDir, "report-"+ref.String()+"-*")
	if err != nil {
		return nil, newError(ErrUnexpected, ref, fmt.Errorf("create work dir: %w", err))
	}
	defer f.release(workDir, logger)

	inputPath := filepath.Join(workDir, inputName)
	outputPath := filepath.Join(workDir, outputName)
	if err := os.WriteFile(inputPath, []byte(html), 0o600); err != nil {
		return nil, newError(ErrUnexpected, ref, fmt.Errorf("write html: %w", err))
	}

	stageStart = time.Now()
	metrics.IncActiveRenders()
	err = f.renderer.Render(ctx, inputPath, outputPath)
	metrics.DecActiveRenders()
	metrics.ObserveStage(metrics.StageRender, time.Since(stageStart))
	if err != nil {
		return nil, newError(ErrRender, ref, err)
	}

	stageStart = time.Now()
	data, err := f.encoder.Reencode(ctx, outputPath)
	metrics.ObserveStage(metrics.StageReencode, time.Since(stageStart))
	if err != nil {
		return nil, newError(ErrUnexpected, ref, fmt.Errorf("reencode pdf: %w", err))
	}
	return data, nil
}

func (f *Fetcher) release(workDir string, logger *zap.Logger) {
	if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("failed to remove work dir", zap.String("dir", workDir), zap.Error(err))
	}
}

func (f *Fetcher) logFailure(logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrFetch):
		logger.Error("error downloading the report", zap.Error(err))
	case errors.Is(err, ErrRender):
		logger.Error("error converting the report to pdf", zap.Error(err))
	default:
		logger.Error("unexpected error generating the report", zap.Error(err))
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrFetch):
		return metrics.OutcomeFetchError
	case errors.Is(err, ErrRender):
		return metrics.OutcomeRenderError
	default:
		return metrics.OutcomeUnexpectedError
	}
}
