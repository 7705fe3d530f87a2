package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/background"
	"github.com/BradenHooton/loginpopup/internal/config"
	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/handlers"
	"github.com/BradenHooton/loginpopup/internal/hooks"
	middlewareCustom "github.com/BradenHooton/loginpopup/internal/middleware"
	"github.com/BradenHooton/loginpopup/internal/render"
	"github.com/BradenHooton/loginpopup/internal/repositories"
	"github.com/BradenHooton/loginpopup/internal/routes"
	"github.com/BradenHooton/loginpopup/internal/services"
	pkgauth "github.com/BradenHooton/loginpopup/pkg/auth"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
	pkglogger "github.com/BradenHooton/loginpopup/pkg/logger"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, logCloser := pkglogger.New(pkglogger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store_backend", cfg.Session.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ui, err := config.LoadUI(cfg.Popup.UIFile)
	if err != nil {
		return err
	}

	// The user directory always lives in postgres
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	st, err := newStores(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer st.close()

	registry := hooks.NewRegistry(logger)
	sessions := newSessionManager(cfg)
	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{
		TrustForwardHeaders: cfg.Server.TrustProxyHeaders,
		TrustedProxies:      cfg.Server.TrustedProxies,
	}

	// Directory
	userRepo := repositories.NewUserRepository(db)
	hasher, err := pkgauth.NewHasher(pkgauth.DefaultCost)
	if err != nil {
		return err
	}
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 50,
	})
	directory := services.NewDirectoryService(userRepo, hasher, timingDelay, logger)

	// Rate limiting and nonces
	limiter := services.NewRateLimitService(st.attempts, services.RateLimitConfig{
		Enabled:     cfg.RateLimit.Enabled,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
	}, registry, logger)
	nonces := auth.NewNonceManager(st.nonces, cfg.Session.NonceTTL)

	// Bot challenge
	var gate services.ChallengeGate
	challengeOrigin := ""
	if cfg.Turnstile.Enabled {
		turnstile := services.NewTurnstileGate(services.TurnstileConfig{
			SiteKey:   cfg.Turnstile.SiteKey,
			SecretKey: cfg.Turnstile.SecretKey,
			VerifyURL: cfg.Turnstile.VerifyURL,
			Timeout:   cfg.Turnstile.Timeout,
			RPS:       cfg.Turnstile.RPS,
		}, logger)
		registry.FormMiddle.Add(func(html string) string {
			return html + turnstile.WidgetHTML()
		})
		gate = turnstile
		challengeOrigin = "https://challenges.cloudflare.com"
	}

	// Second factor
	homeURL := strings.TrimRight(cfg.Server.HomeURL, "/")
	var interceptor services.TwoFactorInterceptor
	var twoFactorHandler *handlers.TwoFactorHandler
	if cfg.TwoFactor.Enabled {
		key, err := hex.DecodeString(cfg.TwoFactor.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid TOTP_ENCRYPTION_KEY: %w", err)
		}
		totpManager, err := auth.NewTOTPManager(key, cfg.TwoFactor.Issuer)
		if err != nil {
			return err
		}
		twoFactorService := services.NewTwoFactorService(
			repositories.NewSecondFactorRepository(db),
			totpManager,
			limiter,
			services.TwoFactorConfig{
				ValidateURL: homeURL + "/2fa/validate",
				TokenTTL:    cfg.TwoFactor.TokenTTL,
			},
			logger,
		)
		interceptor = twoFactorService
		twoFactorHandler = handlers.NewTwoFactorHandler(twoFactorService, sessions, cfg.Server.HomeURL, logger)
	}

	// Login notifications
	var notifier *services.LoginNotifier
	if cfg.Notify.OnLogin {
		sesClient, err := services.NewSESClient(ctx, cfg.Notify.AWSRegion)
		if err != nil {
			return err
		}
		notifier = services.NewLoginNotifier(sesClient, directory, cfg.Notify.FromAddress, logger)
		notifier.Register(registry)
	}

	// Rendering
	sanitizer := render.NewSanitizer()
	renderer, err := render.NewFormRenderer(ui.Labels, ui.Button, registry, sanitizer)
	if err != nil {
		return err
	}

	authService := services.NewAuthService(services.AuthDeps{
		Limiter:   limiter,
		Nonces:    nonces,
		Directory: directory,
		Gate:      gate,
		TwoFactor: interceptor,
		Sanitizer: sanitizer,
		Hooks:     registry,
		Audit:     auditLogger,
	}, services.AuthConfig{
		HomeURL:            cfg.Server.HomeURL,
		AdminURL:           cfg.Server.AdminURL,
		ChallengeAllowList: cfg.Turnstile.AllowList,
	}, logger)

	popupService := services.NewPopupService(nonces, renderer, registry, services.PopupConfig{
		HomeURL:         cfg.Server.HomeURL,
		Delay:           cfg.Popup.StatusDelay,
		SuppressLoading: cfg.Popup.SuppressLoading,
	}, logger)

	popupHandler := handlers.NewPopupHandler(authService, popupService, sessions, ipConfig, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{
		Env:             cfg.Server.Env,
		ChallengeOrigin: challengeOrigin,
	}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, popupHandler, twoFactorHandler, sessions, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.EndpointRPM,
		IPConfig:          ipConfig,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(st.purgers, logger, cfg.RateLimit.CleanupInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if len(st.purgers) > 0 {
		g.Go(func() error {
			cleanupManager.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		cleanupManager.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if notifier != nil {
		notifier.Wait()
	}
	return err
}

// stores holds the backend selected by STORE_BACKEND
type stores struct {
	attempts services.AttemptStore
	nonces   auth.NonceStore
	purgers  map[string]background.Purger
	closers  []func()
}

func newStores(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (*stores, error) {
	st := &stores{purgers: map[string]background.Purger{}}

	switch cfg.Session.StoreBackend {
	case config.StorePostgres:
		attempts := repositories.NewLoginAttemptRepository(db)
		nonces := repositories.NewNonceRepository(db)
		st.attempts = attempts
		st.nonces = nonces
		st.purgers["login_attempts"] = attempts
		st.purgers["popup_nonces"] = nonces

	case config.StoreRedis:
		client, err := repositories.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.attempts = repositories.NewRedisAttemptStore(client, cfg.Redis.KeyPrefix)
		st.nonces = repositories.NewRedisNonceStore(client, cfg.Redis.KeyPrefix)
		st.closers = append(st.closers, closeRedis(client, logger))

	default:
		attempts := repositories.NewMemoryAttemptStore(cfg.RateLimit.CleanupInterval)
		nonces := repositories.NewMemoryNonceStore()
		st.attempts = attempts
		st.nonces = nonces
		st.purgers["popup_nonces"] = nonces
		st.closers = append(st.closers, attempts.Close)
	}

	if cfg.TwoFactor.Enabled {
		secondFactor := repositories.NewSecondFactorRepository(db)
		st.purgers["login_nonces"] = background.PurgeFunc(secondFactor.PurgeExpiredLoginNonces)
	}

	return st, nil
}

func newSessionManager(cfg *config.Config) *auth.SessionManager {
	return auth.NewSessionManager(auth.NewTokenManager(cfg.Session.JWTSecret), auth.SessionConfig{
		TTL:         cfg.Session.TTL,
		RememberTTL: cfg.Session.RememberTTL,
		Cookie: auth.CookieConfig{
			Name:     cfg.Session.CookieName,
			Domain:   cfg.Session.CookieDomain,
			Secure:   cfg.Session.CookieSecure,
			SameSite: cfg.Session.CookieSameSite,
		},
	})
}

func (st *stores) close() {
	for i := len(st.closers) - 1; i >= 0; i-- {
		st.closers[i]()
	}
}

func closeRedis(client *redis.Client, logger *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
}
