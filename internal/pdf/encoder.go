// Package pdf re-encodes renderer output into canonical PDF bytes using pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Signature is the magic prefix every PDF starts with.
const Signature = "%PDF-"

// ErrNotPDF is returned when the input or the re-encoded output lacks the PDF signature.
var ErrNotPDF = errors.New("not a pdf document")

var disableConfigDir sync.Once

// Encoder implements report.Encoder.
type Encoder struct{}

// NewEncoder returns an Encoder. pdfcpu's on-disk configuration directory is disabled so the
// service never writes outside its scratch directories.
func NewEncoder() *Encoder {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Encoder{}
}

// Reencode parses the PDF at path and writes it back out through pdfcpu's optimizer, so the
// caller receives a freshly serialized document rather than the renderer's raw bytes.
func (e *Encoder) Reencode(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reencode canceled: %w", err)
	}
	// #nosec G304 -- path is the pipeline's own scratch file.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	return e.reencode(f)
}

// PageCount reports the number of pages in data.
func (e *Encoder) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func (e *Encoder) reencode(rs io.ReadSeeker) ([]byte, error) {
	if err := checkSignature(rs); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.Optimize(rs, &buf, newConfiguration()); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}
	out := buf.Bytes()
	if !bytes.HasPrefix(out, []byte(Signature)) {
		return nil, ErrNotPDF
	}
	return out, nil
}

// newConfiguration builds a fresh configuration per call; pdfcpu mutates it while processing.
func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func checkSignature(rs io.ReadSeeker) error {
	head := make([]byte, len(Signature))
	if _, err := io.ReadFull(rs, head); err != nil {
		return fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if string(head) != Signature {
		return ErrNotPDF
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind pdf: %w", err)
	}
	return nil
}
