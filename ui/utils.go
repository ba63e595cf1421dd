package ui

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "sentinel/internal/errors"
)

// errorBody is the JSON shape of every failed request
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps err to its code and status. Internal errors are logged and
// their detail withheld.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.FromDomain(err)
	status := apperrors.HTTPStatus(appErr.Code)
	msg := appErr.Message
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		if appErr.Code == apperrors.CodeInternalError {
			msg = "internal error"
		}
	}
	a.writeJSON(w, status, errorBody{Error: msg, Code: appErr.Code})
}

// decodeJSON reads an optional JSON body into dst; an empty body leaves dst untouched
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.InvalidInput("invalid JSON body: " + err.Error())
}

// intQuery returns the named query parameter, or def when absent
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(name + " must be an integer")
	}
	return v, nil
}

func floatQuery(r *http.Request, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperrors.InvalidInput(name + " must be a finite number")
	}
	return v, nil
}
