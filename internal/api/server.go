// Package api exposes the HTTP interface for the report service.
package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/parcel-report-pdf/internal/metrics"
	"github.com/JakeFAU/parcel-report-pdf/internal/parcel"
	"github.com/JakeFAU/parcel-report-pdf/internal/report"
)

// FormField is the form input carrying the parcel reference.
const FormField = "ref_catastral"

// ExampleReference is shown as placeholder and in the direct-link hint.
const ExampleReference = "07045A00200407"

const maxFormBytes = 64 << 10

// User-facing messages.
const (
	msgInvalidReference = "Referencia catastral inválida"
	msgMissingReference = "Por favor, introduce una referencia catastral."
	msgGenerateFailed   = "Error al generar el PDF"
	msgGenerateRetry    = "Error al generar el PDF. Por favor, verifica la referencia catastral e inténtalo de nuevo."
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ReportFetcher produces the PDF report for a parcel.
type ReportFetcher interface {
	Fetch(ctx context.Context, ref parcel.Reference) (report.Document, error)
}

// Server wires HTTP handlers to the report pipeline.
type Server struct {
	router  chi.Router
	fetcher ReportFetcher
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(fetcher ReportFetcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		fetcher: fetcher,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", s.index)
	r.Post("/generate-pdf", s.generateFromForm)
	r.Get("/{ref}", s.generateDirect)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"Example":   ExampleReference,
		"DirectURL": baseURL(r) + "/" + ExampleReference,
	}
	s.renderHTML(w, http.StatusOK, "index.html", data)
}

func (s *Server) generateDirect(w http.ResponseWriter, r *http.Request) {
	ref, err := parcel.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		metrics.ObserveReport(metrics.OutcomeInvalidReference, 0)
		http.Error(w, msgInvalidReference, http.StatusBadRequest)
		return
	}

	s.requestLogger(r).Info("generating pdf", zap.String("ref", ref.String()))
	doc, err := s.fetcher.Fetch(r.Context(), ref)
	if err != nil {
		http.Error(w, msgGenerateFailed, http.StatusNotFound)
		return
	}
	s.writePDF(w, doc)
}

func (s *Server) generateFromForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, msgMissingReference)
		return
	}
	raw := r.PostForm.Get(FormField)
	if raw == "" {
		s.renderError(w, http.StatusBadRequest, msgMissingReference)
		return
	}
	ref, err := parcel.Parse(raw)
	if err != nil {
		metrics.ObserveReport(metrics.OutcomeInvalidReference, 0)
		s.renderError(w, http.StatusBadRequest, msgInvalidReference)
		return
	}

	s.requestLogger(r).Info("generating pdf", zap.String("ref", ref.String()))
	doc, err := s.fetcher.Fetch(r.Context(), ref)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, msgGenerateRetry)
		return
	}
	s.writePDF(w, doc)
}

func (s *Server) writePDF(w http.ResponseWriter, doc report.Document) {
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename()}))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		s.logger.Warn("write pdf failed", zap.String("ref", doc.Reference.String()), zap.Error(err))
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, msg string) {
	s.renderHTML(w, status, "error.html", map[string]string{"Message": msg})
}

func (s *Server) renderHTML(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template failed", zap.String("template", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write html failed", zap.Error(err))
	}
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
