package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/query"
	"github.com/ca-srg/photosearch/internal/storage"
)

// CustomLabelsHeader carries the comma-separated labels on upload requests.
const CustomLabelsHeader = "X-Amz-Meta-Customlabels"

// handleSearch adapts the request to the API Gateway proxy shape and writes the handler's
// response back unchanged.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.search.Handle(r.Context(), toProxyRequest(r))
	if err != nil {
		s.logger.Error("search handler returned an error", zap.Error(err))
		resp = events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    query.CORSHeaders(),
			Body:       `{"error":"Internal Server Error"}`,
		}
	}
	writeProxyResponse(w, resp)
}

func toProxyRequest(r *http.Request) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         map[string]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  middleware.GetReqID(r.Context()),
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
		},
	}
	for name, values := range r.Header {
		if len(values) > 0 {
			req.Headers[name] = values[0]
		}
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			req.QueryStringParameters[name] = values[0]
			req.MultiValueQueryStringParameters[name] = values
		}
	}
	return req
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	for name, value := range query.CORSHeaders() {
		w.Header().Set(name, value)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload stores the request body in S3. Bodies whose content type carries a
// ";base64" parameter are decoded first, which is how the browser client sends images.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	if bucket == "" || key == "" {
		writeJSONError(w, http.StatusBadRequest, "bucket and key are required")
		return
	}
	if !storage.IsImageKey(key) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "only .jpg, .jpeg and .png images are accepted")
		return
	}

	contentType, isBase64 := parseUploadContentType(r.Header.Get("Content-Type"))
	var body io.Reader = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if isBase64 {
		body = base64.NewDecoder(base64.StdEncoding, body)
	}

	// Buffer so a bad base64 payload or an oversized body fails before anything is stored.
	payload, err := io.ReadAll(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	labels := storage.ParseCustomLabels(r.Header.Get(CustomLabelsHeader))
	if err := s.uploader.Upload(r.Context(), bucket, key, bytes.NewReader(payload), contentType, labels); err != nil {
		s.logger.Error("upload failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	for name, value := range query.CORSHeaders() {
		w.Header().Set(name, value)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{}`)
}

// parseUploadContentType splits "image/png;base64" into the media type and a base64 flag.
func parseUploadContentType(raw string) (string, bool) {
	parts := strings.Split(raw, ";")
	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	isBase64 := false
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	return mediaType, isBase64
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	for name, value := range query.CORSHeaders() {
		w.Header().Set(name, value)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.config.Health == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.HealthTimeout)
	defer cancel()

	if err := s.config.Health.HealthCheck(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "search index unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
