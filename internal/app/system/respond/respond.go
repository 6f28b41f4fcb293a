// Package respond writes JSON responses and maps engine errors to HTTP
// status codes for the feature handlers.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/inputval"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxBody bounds request bodies; every request DTO is tiny.
const maxBody = 64 << 10

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CascadeID string `json:"cascade_id,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Status maps an error kind to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrPartialCascade):
		return http.StatusInternalServerError
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error writes err as JSON. Unclassified errors are logged and their text
// is not sent to the client.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	status := Status(err)
	body := ErrorBody{Error: err.Error()}

	var ve *apperr.ValidationError
	var pe *apperr.PartialCascadeError
	switch {
	case errors.As(err, &pe):
		body.CascadeID = pe.CascadeID
		log.Error("partial cascade", zap.String("cascade_id", pe.CascadeID), zap.Error(err))
	case errors.As(err, &ve):
		body.Field, body.Reason = ve.Field, ve.Reason
	case status == http.StatusInternalServerError:
		log.Error("request failed", zap.Error(err))
		body.Error = "internal error"
	}
	JSON(w, status, body)
}

// Decode reads a JSON body into dst and validates it. Failures are
// returned as *apperr.ValidationError.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", apperr.ReasonMalformed)
	}
	res := inputval.Validate(dst)
	if !res.HasErrors() {
		return nil
	}
	first := res.Errors[0]
	reason := apperr.ReasonMalformed
	if strings.HasPrefix(first.Tag, "required") {
		reason = apperr.ReasonRequired
	}
	return apperr.Invalid(first.Field, reason)
}

// ObjectID parses the chi URL parameter name.
func ObjectID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, apperr.Invalid(name, apperr.ReasonMalformed)
	}
	return id, nil
}
