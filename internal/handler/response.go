package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"workflow-dashboard/internal/service"
	"workflow-dashboard/internal/util"
)

const maxBodyBytes = 1 << 20

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(message string) Response {
	return Response{Success: true, Message: message}
}

func errorResponse(code, message string) Response {
	return Response{Success: false, Error: code, Message: message}
}

// responder carries the shared JSON helpers of every handler.
type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends a service error. Only its public message reaches
// the client; the cause is logged.
func (h responder) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	se := service.AsError(err)
	status := statusFor(se)

	fields := []zap.Field{
		util.String("path", r.URL.Path),
		util.Int("status_code", status),
		util.String("kind", se.Kind.String()),
		util.String("message", se.Message),
	}
	if se.Err != nil {
		fields = append(fields, util.ErrorField(se.Err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response", fields...)
	} else {
		h.logger.Warn("HTTP error response", fields...)
	}

	h.respondWithJSON(w, status, errorResponse(se.Kind.String(), se.Message))
}

func (h responder) respondBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.respondWithError(w, r, &service.Error{
		Kind:    service.KindValidation,
		Message: "invalid request body",
		Err:     err,
	})
}

// statusFor is the single mapping from error kind to HTTP status.
func statusFor(e *service.Error) int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	switch e.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
