package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"authgate/internal/auth"
	"authgate/internal/character"
	"authgate/internal/httpjson"
	"authgate/internal/observability"
)

type Options struct {
	LoadDotEnv bool
	Logger     *observability.Logger
}

type Runtime struct {
	Config  Config
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := options.Logger
	if logger == nil {
		logger = observability.NewLogger()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	users, err := auth.NewCredentialStore(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	revocations := auth.NewRevocationRegistry()
	tokens := auth.NewTokenService(cfg.JWTSecret).WithTTL(cfg.AccessTTL, cfg.RefreshTTL)

	if err := auth.BootstrapAdmin(context.Background(), users, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	authHandler := auth.NewHandler(users, revocations, tokens, logger)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow).WithTrustedProxy(cfg.TrustProxy)

	authenticate := auth.NewAuthenticationGate(tokens, revocations).Middleware
	adminOnly := auth.NewAuthorizationGate(auth.RoleAdmin).Middleware

	characterHandler := character.NewHandler(character.NewRepository())

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(authHandler))
	mux.Handle("/auth/login", authHandler)
	mux.Handle("/auth/register", authHandler)
	mux.Handle("/auth/logout", authHandler)
	mux.HandleFunc("GET /health", healthHandler(users, revocations))
	mux.Handle("GET /characters", authenticate(http.HandlerFunc(characterHandler.ListCharacters)))
	mux.Handle("GET /characters/{id}", authenticate(http.HandlerFunc(characterHandler.GetCharacter)))
	mux.Handle("POST /characters", authenticate(adminOnly(http.HandlerFunc(characterHandler.CreateCharacter))))
	mux.Handle("PUT /characters/{id}", authenticate(adminOnly(http.HandlerFunc(characterHandler.UpdateCharacter))))
	mux.Handle("DELETE /characters/{id}", authenticate(adminOnly(http.HandlerFunc(characterHandler.DeleteCharacter))))
	mux.HandleFunc("/", auth.NotFound)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return nil
		},
	}, nil
}

func healthHandler(users *auth.CredentialStore, revocations *auth.RevocationRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"time":          time.Now().UTC().Format(time.RFC3339),
			"users":         users.Count(),
			"revokedTokens": revocations.Len(),
		})
	}
}
