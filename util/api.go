package util

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// StatusCode returns the status code represented
// by the specified status. Note that this function
// returns a status code of 200 by default
func StatusCode(status string) int {
	switch status {
	case values.Error, values.Failed:
		return http.StatusInternalServerError
	case values.Created, values.Warning:
		return http.StatusCreated
	case values.BadRequestBody:
		return http.StatusBadRequest
	case values.Unprocessable:
		return http.StatusUnprocessableEntity
	case values.NotAllowed:
		return http.StatusForbidden
	case values.Conflict:
		return http.StatusConflict
	case values.NotFound:
		return http.StatusNotFound
	case values.NotAuthorised, values.TokenExpired:
		return http.StatusUnauthorized
	case values.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

const maxJSONBody = 1 << 20

// DecodeJSONBody decodes at most 1 MiB of JSON from body into target.
func DecodeJSONBody(tc *tracing.Context, body io.ReadCloser, target interface{}) error {
	if body == nil {
		return fmt.Errorf("missing request body for request: %v", tc)
	}
	defer func() {
		_ = body.Close()
	}()

	if err := json.NewDecoder(io.LimitReader(body, maxJSONBody)).Decode(target); err != nil {
		return errors.Wrapf(err, "Error parsing json body for request: %v", tc)
	}

	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewID returns a random UUID string for database keys.
func NewID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID. Report and account ids are
// UUIDs, so anything else cannot exist.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
