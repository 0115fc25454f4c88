package handler

// Every JSON response from the API carries a "status" field ("success" or
// "error") and a human-readable "message":
//
//	{"status": "error", "message": "Email already registered"}
//
// writeError is the only place a domain error is turned into an HTTP
// status code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/identity-portal/internal/apperror"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxBodyBytes = 1 << 20
)

// StatusResponse is the body of most API responses.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LoginResponse is returned by local and federated logins.
type LoginResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	s := statusSuccess
	if status >= http.StatusBadRequest {
		s = statusError
	}
	writeJSON(w, status, StatusResponse{Status: s, Message: message})
}

// statusFor maps an error to its HTTP status. Caller-correctable errors
// are all 400 so a client cannot tell, for example, an unknown email
// from a wrong password by status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrConflict),
		errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrExpired),
		errors.Is(err, apperror.ErrAuthentication):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as {"status":"error","message":...}. Only
// AppError messages reach the client; anything else is logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)

	var appErr *apperror.AppError
	message := "An internal error occurred"
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
	}

	writeMessage(w, status, message)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}
