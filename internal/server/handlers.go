package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/fetch"
	"github.com/hyperifyio/contentgrade/internal/report"
)

// formOverhead allows for multipart framing on top of the file limit.
const formOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.cfg.Version,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	limits := document.Limits{MaxBytes: s.cfg.MaxUploadBytes, Extensions: s.cfg.Extensions}
	if err := document.ValidateUpload(header.Filename, header.Size, limits); err != nil {
		respondErr(w, r, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	doc, err := s.deps.Parser.Parse(r.Context(), data, header.Filename)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.deps.Metrics.ObserveParse(string(doc.Format), doc.Degraded)
	respondJSON(w, http.StatusOK, doc)
}

type fetchRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if s.deps.Loader == nil {
		respondError(w, http.StatusNotImplemented, "URL fetching is not configured")
		return
	}
	doc, err := s.deps.Loader.Load(r.Context(), req.URL)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.deps.Metrics.ObserveParse(string(doc.Format), doc.Degraded)
	respondJSON(w, http.StatusOK, doc)
}

type checkLinksRequest struct {
	Content string   `json:"content"`
	URLs    []string `json:"urls,omitempty"`
	BaseURL string   `json:"baseUrl,omitempty"`
}

func (s *Server) handleCheckLinks(w http.ResponseWriter, r *http.Request) {
	var req checkLinksRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	chk := *s.deps.Checker
	if req.BaseURL != "" {
		u, err := url.Parse(req.BaseURL)
		if err != nil || !u.IsAbs() {
			respondError(w, http.StatusBadRequest, "baseUrl must be an absolute URL")
			return
		}
		chk.BaseURL = u
	}
	if len(req.URLs) > 0 {
		respondJSON(w, http.StatusOK, chk.CheckURLs(r.Context(), req.URLs))
		return
	}
	respondJSON(w, http.StatusOK, chk.Check(r.Context(), req.Content))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evaluator == nil {
		respondError(w, http.StatusNotImplemented, "evaluation is not configured")
		return
	}
	var req evaluate.Request
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := s.deps.Evaluator.Evaluate(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if s.deps.Evaluator == nil {
		respondError(w, http.StatusNotImplemented, "evaluation is not configured")
		return
	}
	var req evaluate.CompareRequest
	if !s.decode(w, r, &req) {
		return
	}
	cmp, err := s.deps.Evaluator.Compare(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.PathValue("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var ev evaluate.Evaluation
	if !s.decode(w, r, &ev) {
		return
	}
	var buf bytes.Buffer
	meta := report.Meta{BaseURL: s.cfg.LLMBaseURL, LLMCache: s.cfg.LLMCache}
	if err := report.Write(&buf, format, ev, meta); err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": report.Filename(ev, format),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// decode reads a JSON body into v, answering 400 or 413 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			respondError(w, http.StatusUnsupportedMediaType, "expected application/json")
			return false
		}
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body exceeds size limit")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		resErr    *document.ResourceError
		statusErr *fetch.StatusError
		apiErr    *openai.APIError
	)
	switch {
	case errors.Is(err, document.ErrEmpty),
		errors.Is(err, evaluate.ErrMissingContent),
		errors.Is(err, evaluate.ErrMissingAPIKey),
		errors.Is(err, evaluate.ErrNoCompetitors),
		errors.Is(err, evaluate.ErrTooManyCompetitors),
		errors.Is(err, fetch.ErrUnsupportedScheme),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrTooLarge), errors.Is(err, fetch.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrUnsupportedType), errors.Is(err, fetch.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, fetch.ErrDisallowed):
		return http.StatusForbidden
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized:
		return http.StatusUnauthorized
	case errors.Is(err, evaluate.ErrModelCall),
		errors.Is(err, evaluate.ErrEmptyResponse),
		errors.Is(err, evaluate.ErrMalformedResponse),
		errors.Is(err, fetch.ErrFetchFailed),
		errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &resErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("request failed")
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	respondError(w, code, msg)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
