// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes, and runs the HTTP listener.
//
// Dependency flow:
//
//	config.Config → OpenStore → repository.Store
//	             → IdentityService, FederationResolver, MailSettings
//	             → IdentityHandler, SSOHandler, SettingsHandler
//	             → chi router under /api
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/config"
	"github.com/sakif/identity-portal/internal/handler"
	"github.com/sakif/identity-portal/internal/middleware"
	"github.com/sakif/identity-portal/internal/mq"
	"github.com/sakif/identity-portal/internal/notify"
	"github.com/sakif/identity-portal/internal/repository"
	"github.com/sakif/identity-portal/internal/service"
	"github.com/sakif/identity-portal/internal/vault"
)

const shutdownTimeout = 30 * time.Second

// Server owns the store and every long-lived connection; Start closes
// them on shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	store  repository.Store

	hasher  *auth.PasswordHasher
	closers []func() error

	// localQueue is set when verification mail goes through an in-process
	// queue that this server must drain itself.
	localQueue *mq.MQ
	delivery   notify.Sender
}

// New wires the application. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		hasher: auth.NewPasswordHasher(cfg.BcryptCost),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// === STORE ===
	s.store, err = OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	s.closers = append(s.closers, s.store.Close)

	sealer, err := vault.ParseKey(cfg.SecretsKey)
	if err != nil {
		return nil, fmt.Errorf("SECRETS_KEY: %w", err)
	}
	if sealer == nil {
		logger.Warn("SECRETS_KEY not set, stored secrets are not encrypted")
	}

	sessions, err := auth.NewSessionIssuer(cfg.Session.JWTSecret, cfg.Session.TTL)
	if err != nil {
		return nil, err
	}

	locker, closeLocker, err := NewLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting redis: %w", err)
	}
	s.closers = append(s.closers, closeLocker)

	// === SERVICES ===
	mailSettings := service.NewMailSettings(s.store, MailDefaults(cfg.Mail), sealer, logger)
	s.delivery = notify.NewSMTPSender(mailSettings)

	sender, queue, local, err := newSender(cfg, s.delivery, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting mail queue: %w", err)
	}
	if queue != nil {
		s.closers = append(s.closers, queue.Close)
		if local {
			s.localQueue = queue
		}
	}

	identity := service.NewIdentityService(s.store, s.hasher, sender, locker, logger, service.IdentityOptions{
		FromName:      cfg.Mail.FromName,
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	federation := service.NewFederationResolver(s.store, FederationDefaults(cfg.Keycloak), sealer, logger)

	// === HANDLERS ===
	cookies := handler.CookieOptions{Secure: isHTTPS(cfg.PublicBaseURL)}
	identityHandler := handler.NewIdentityHandler(identity, sessions, cookies, cfg.PublicBaseURL, logger)
	ssoHandler := handler.NewSSOHandler(identityHandler, federation, auth.NewFederationClient, cfg.Keycloak.RedirectURL)
	settingsHandler := handler.NewSettingsHandler(federation, mailSettings, logger)

	s.routes(sessions, identityHandler, ssoHandler, settingsHandler, cfg.AdminEmails)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the open store so commands can run maintenance passes
// against the same connection before serving.
func (s *Server) Store() repository.Store {
	return s.store
}

// Hasher returns the configured password hasher.
func (s *Server) Hasher() *auth.PasswordHasher {
	return s.hasher
}

// routes mounts every endpoint.
//
// Middleware order matters: RequestID must precede Logger so each log
// line carries the id, and Recoverer sits inside Logger so a panic is
// still logged as a 500.
func (s *Server) routes(
	sessions *auth.SessionIssuer,
	identity *handler.IdentityHandler,
	sso *handler.SSOHandler,
	settings *handler.SettingsHandler,
	admins []string,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/signup", identity.HandleSignup)
		r.Get("/verify", identity.HandleVerify)
		r.Post("/login", identity.HandleLogin)
		r.Post("/logout", identity.HandleLogout)

		r.Route("/auth", func(r chi.Router) {
			r.With(auth.RequireSession(sessions)).Get("/user", identity.HandleCurrentUser)

			r.Get("/sso/config", sso.HandleConfig)
			r.Post("/sso/session", sso.HandleSession)
			r.Get("/sso/authorize", sso.HandleAuthorize)
			r.Get("/sso/callback", sso.HandleCallback)
		})

		// Settings hold credentials and are limited to ADMIN_EMAILS.
		r.Route("/settings", func(r chi.Router) {
			r.Use(auth.RequireSession(sessions))
			r.Use(identity.RequireAdmin(admins))
			r.Get("/keycloak", settings.HandleGetFederation)
			r.Post("/keycloak", settings.HandleSaveFederation)
			r.Post("/keycloak/test", settings.HandleTestFederation)
			r.Get("/mail", settings.HandleGetMail)
			r.Post("/mail", settings.HandleSaveMail)
		})
	})
}

// Start serves HTTP until ctx is cancelled, then drains in-flight
// requests and closes the store and other connections.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	if s.localQueue != nil {
		worker := notify.NewWorker(s.localQueue, s.delivery, s.logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("mail worker stopped", slog.String("error", err.Error()))
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("public_url", s.cfg.PublicBaseURL),
			slog.String("database", s.cfg.Database.Driver),
			slog.String("mail_transport", s.cfg.Mail.Transport),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases everything New opened. Start calls it on return; call
// it directly only when Start is never called.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(strings.ToLower(baseURL), "https://")
}
