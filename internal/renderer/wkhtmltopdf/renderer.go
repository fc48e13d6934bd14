// Package wkhtmltopdf renders HTML files to PDF by running the wkhtmltopdf binary.
package wkhtmltopdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBinaryPath is where distribution packages install wkhtmltopdf.
const DefaultBinaryPath = "/usr/bin/wkhtmltopdf"

const maxOutputInError = 2048

// ErrNoOutput is returned when the process succeeds but leaves no PDF behind.
var ErrNoOutput = errors.New("renderer produced no output")

// Config controls how the subprocess is launched.
type Config struct {
	BinaryPath string
	// ExtraArgs are inserted before the input/output pair.
	ExtraArgs []string
	// Timeout bounds one invocation. Zero waits for the process indefinitely.
	Timeout time.Duration
}

// Renderer implements report.Renderer by spawning one process per call.
type Renderer struct {
	binary string
	cfg    Config
	logger *zap.Logger
}

// New resolves the binary and returns a Renderer.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		cfg.BinaryPath = DefaultBinaryPath
	}
	binary, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("locate renderer binary %q: %w", cfg.BinaryPath, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		binary: binary,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Render runs `<binary> [extra args...] <input> <output>` and waits for it to exit.
// A non-zero exit status is an error; the process output is attached to it.
func (r *Renderer) Render(ctx context.Context, inputPath, outputPath string) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.cfg.ExtraArgs...), inputPath, outputPath)
	// #nosec G204 -- binary comes from operator configuration, paths from the pipeline.
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.WaitDelay = 5 * time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("renderer finished",
		zap.String("binary", r.binary),
		zap.Duration("duration", time.Since(start)),
		zap.Int("output_bytes", output.Len()),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("run %s: %w", r.binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s: %w",
				r.binary, exitErr.ExitCode(), truncate(output.String()), err)
		}
		return fmt.Errorf("run %s: %w", r.binary, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoOutput
		}
		return fmt.Errorf("stat renderer output: %w", err)
	}
	if info.Size() == 0 {
		return ErrNoOutput
	}
	return nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutputInError {
		return s
	}
	return s[len(s)-maxOutputInError:]
}
