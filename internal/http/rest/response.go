package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
)

type ServerResponse struct {
	Message    string      `json:"message"`
	Status     string      `json:"status"`
	StatusCode int         `json:"-"`
	Data       interface{} `json:"data,omitempty"`
}

func respondWithError(err error, message, status string, tc *tracing.Context) *ServerResponse {
	if tc != nil {
		log.Printf("[API] %s | %s: %v", tc, message, err)
	} else {
		log.Printf("[API] %s: %v", message, err)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
	}
}

func writeErrorResponse(w http.ResponseWriter, err error, status, message string) {
	log.Printf("[API] %s: %v", message, err)

	resp := ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
	}
	respByte, _ := json.Marshal(resp)
	writeJSONResponse(w, respByte, resp.StatusCode)
}

func writeJSONResponse(w http.ResponseWriter, body []byte, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// statusForError maps domain errors onto response statuses.
func statusForError(err error) string {
	var transportErr *model.TransportError
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidStatus):
		return values.BadRequestBody
	case errors.Is(err, model.ErrSubmissionInFlight), errors.Is(err, model.ErrNothingToRetry),
		errors.Is(err, model.ErrAccountExists):
		return values.Conflict
	case errors.Is(err, model.ErrReportNotFound), errors.Is(err, model.ErrAccountNotFound):
		return values.NotFound
	case errors.Is(err, model.ErrInvalidCredentials), errors.Is(err, model.ErrSessionNotFound):
		return values.NotAuthorised
	case errors.Is(err, model.ErrContentRejected):
		return values.Unprocessable
	case errors.As(err, &transportErr):
		return values.Upstream
	default:
		return values.Error
	}
}
