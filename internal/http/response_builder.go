// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used by every handler to write JSON
// responses and the mapping from service errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetwise/internal/allocation"
	"budgetwise/internal/lock"
	"budgetwise/internal/log"
)

// Kind reported for a run blocked by a concurrent run of the same month.
const kindConflict = "Conflict"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response","kind":"Internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// PartialBody reports a distribution where some goal writes failed.
type PartialBody struct {
	ErrorBody
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Result    any      `json:"result,omitempty"`
}

// ErrorResponse creates an error response with the given status and kind.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Kind: kind})
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Internal", "internal error")
}

// StatusFor maps an error to its HTTP status and reported kind.
func StatusFor(err error) (int, string) {
	if errors.Is(err, lock.ErrLocked) {
		return http.StatusConflict, kindConflict
	}
	switch kind := allocation.KindOf(err); kind {
	case allocation.InvalidArgument:
		return http.StatusBadRequest, string(kind)
	case allocation.NotFound:
		return http.StatusNotFound, string(kind)
	case allocation.UpstreamFailure:
		return http.StatusBadGateway, string(kind)
	case allocation.PartialApplication:
		return http.StatusMultiStatus, string(kind)
	}
	return http.StatusInternalServerError, "Internal"
}

// errorResponse builds the response for err. Only engine messages reach the
// client; anything unclassified is reported as an internal error.
func errorResponse(err error, result any) *JSONResponseBuilder {
	status, kind := StatusFor(err)

	var aerr *allocation.Error
	switch {
	case status == http.StatusConflict:
		return ErrorResponse(status, kind, "an allocation for this month is already running")
	case !errors.As(err, &aerr):
		return InternalServerError()
	case aerr.Kind == allocation.PartialApplication:
		return NewJSONResponse().Status(status).Body(PartialBody{
			ErrorBody: ErrorBody{Error: aerr.Message, Kind: kind},
			Succeeded: nonNil(aerr.Succeeded),
			Failed:    nonNil(aerr.Failed),
			Result:    result,
		})
	case aerr.Kind == allocation.UpstreamFailure && len(aerr.Failed) > 0:
		return NewJSONResponse().Status(status).Body(PartialBody{
			ErrorBody: ErrorBody{Error: aerr.Message, Kind: kind},
			Succeeded: nonNil(aerr.Succeeded),
			Failed:    aerr.Failed,
		})
	}
	return ErrorResponse(status, kind, aerr.Message)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// writeError logs err with the request logger and writes its response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	writeErrorWithResult(w, r, op, err, nil)
}

func writeErrorWithResult(w http.ResponseWriter, r *http.Request, op string, err error, result any) {
	status, kind := StatusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err).WithErrorKind(kind).WithOperation(op)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	errorResponse(err, result).Write(w)
}
