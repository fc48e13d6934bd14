package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/parcel-report-pdf/internal/parcel"
)

// Failure kinds. All of them mean no document was produced; they only differ in logs and metrics.
var (
	ErrFetch      = errors.New("report fetch failed")
	ErrRender     = errors.New("report render failed")
	ErrUnexpected = errors.New("unexpected report failure")
)

// Source retrieves the HTML report behind a URL.
type Source interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Renderer converts the HTML file at inputPath into a PDF written to outputPath.
type Renderer interface {
	Render(ctx context.Context, inputPath, outputPath string) error
}

// Encoder re-serializes the PDF at path into canonical bytes.
type Encoder interface {
	Reencode(ctx context.Context, path string) ([]byte, error)
}

// Document is a rendered report. It lives only for one request.
type Document struct {
	Reference parcel.Reference
	Data      []byte
}

// Filename is the attachment name for the document.
func (d Document) Filename() string {
	return d.Reference.Filename()
}

// Error carries the failure kind alongside the underlying cause.
type Error struct {
	Kind error
	Ref  parcel.Reference
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parcel %s: %v: %v", e.Ref, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, ref parcel.Reference, err error) error {
	return &Error{Kind: kind, Ref: ref, Err: err}
}
