package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/logger"
	"go.uber.org/zap"
)

// HeaderActor carries the authenticated caller id set by the gateway in front of us.
const HeaderActor = "X-Actor-Id"

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDeadline:
		return http.StatusGone
	case apperr.KindContention:
		return http.StatusTooManyRequests
	case apperr.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), nil).Error("request failed", zap.Error(err))
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, code, errorResp{Error: msg, Code: apperr.CodeOf(err)})
}

var errNoActor = apperr.New(apperr.KindForbidden, "MISSING_ACTOR", "httpx: missing "+HeaderActor+" header")

func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActor))
	if id == "" {
		return "", errNoActor
	}
	return id, nil
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid json: %v", err)
	}
	return nil
}
