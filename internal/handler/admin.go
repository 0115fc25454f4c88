package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
)

const msgAdminRequired = "Administrator access required"

// RequireAdmin lets a request through only when the session's account
// email is one of admins. It must be mounted behind auth.RequireSession.
// An empty list denies everyone.
func (h *IdentityHandler) RequireAdmin(admins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(admins))
	for _, email := range admins {
		allowed[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := auth.SessionFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			user, err := h.identity.GetUserByID(r.Context(), session.UserID)
			if errors.Is(err, apperror.ErrNotFound) {
				writeMessage(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if err != nil {
				writeError(w, h.logger, err)
				return
			}

			if _, ok := allowed[strings.ToLower(user.Email)]; !ok {
				h.logger.Warn("settings access denied", slog.String("user_id", user.ID))
				writeError(w, h.logger, apperror.Forbidden(msgAdminRequired))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
