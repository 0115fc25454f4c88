package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/service"
)

// Identity is the account logic the handlers drive. *service.IdentityService
// implements it.
type Identity interface {
	Signup(ctx context.Context, in service.SignupInput) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	FederatedLogin(ctx context.Context, id model.FederatedIdentity) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// IdentityHandler serves local signup, verification, login, and the
// session endpoints.
type IdentityHandler struct {
	identity      Identity
	sessions      *auth.SessionIssuer
	cookies       CookieOptions
	publicBaseURL string
	logger        *slog.Logger
}

func NewIdentityHandler(
	identity Identity,
	sessions *auth.SessionIssuer,
	cookies CookieOptions,
	publicBaseURL string,
	logger *slog.Logger,
) *IdentityHandler {
	return &IdentityHandler{
		identity:      identity,
		sessions:      sessions,
		cookies:       cookies,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

type signupRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CurrentUserResponse describes the logged-in user and how they logged in.
type CurrentUserResponse struct {
	AuthType  string `json:"authType"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// HandleSignup registers a user and emails a verification link.
//
// HTTP: POST /api/signup
func (h *IdentityHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	_, err := h.identity.Signup(r.Context(), service.SignupInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		BaseURL:         requestBaseURL(r, h.publicBaseURL),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeMessage(w, http.StatusOK, "Registration successful! Please check your email to verify your account.")
}

// HandleVerify consumes a verification token.
//
// HTTP: GET /api/verify?token=...
func (h *IdentityHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identity.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully! You can now log in.")
}

// HandleLogin checks a local password and sets the session cookie.
//
// HTTP: POST /api/login
func (h *IdentityHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.completeLogin(w, user, auth.MethodLocal)
}

// completeLogin issues the session cookie and writes the login response.
func (h *IdentityHandler) completeLogin(w http.ResponseWriter, user *model.User, method string) {
	if err := h.startSession(w, user, method); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Status:    statusSuccess,
		Message:   "Login successful",
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	})
}

func (h *IdentityHandler) startSession(w http.ResponseWriter, user *model.User, method string) error {
	token, err := h.sessions.Issue(user.ID, method)
	if err != nil {
		return apperror.Dependency("issue session", err)
	}
	h.cookies.setSession(w, token, h.sessions.TTL())
	return nil
}

// HandleLogout clears the session cookie. Sessions are stateless JWTs, so
// a copied token stays valid until it expires.
//
// HTTP: POST /api/logout
func (h *IdentityHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, auth.SessionCookie, "/")
	writeMessage(w, http.StatusOK, "Logged out")
}

// HandleCurrentUser returns the user behind the session. It must be
// mounted behind auth.RequireSession.
//
// HTTP: GET /api/auth/user
func (h *IdentityHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.identity.GetUserByID(r.Context(), session.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		// The account behind a still-valid token is gone.
		writeMessage(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CurrentUserResponse{
		AuthType:  session.Method,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}
