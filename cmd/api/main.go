//	@title			Tessera API
//	@version		1.0
//	@description	User accounts, authentication and compressed image uploads.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tessera/api/internal/auth"
	"github.com/tessera/api/internal/config"
	"github.com/tessera/api/internal/db"
	"github.com/tessera/api/internal/file"
	"github.com/tessera/api/internal/imaging"
	"github.com/tessera/api/internal/logging"
	"github.com/tessera/api/internal/mail"
	"github.com/tessera/api/internal/metrics"
	appMiddleware "github.com/tessera/api/internal/middleware"
	"github.com/tessera/api/internal/roles"
	"github.com/tessera/api/internal/storage"
	"github.com/tessera/api/internal/token"
	"github.com/tessera/api/internal/user"

	_ "github.com/tessera/api/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	blobs, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage init failed")
	}
	blobs = m.InstrumentStorage(blobs)

	compressor := imaging.NewCompressor(imaging.Options{
		MaxBytes:        cfg.Image.MaxBytes,
		InitialQuality:  cfg.Image.InitialQuality,
		QualityStep:     cfg.Image.QualityStep,
		MinQuality:      cfg.Image.MinQuality,
		MaxWidth:        cfg.Image.MaxWidth,
		FallbackWidth:   cfg.Image.FallbackWidth,
		FallbackQuality: cfg.Image.FallbackQuality,
		MaxPixels:       cfg.Image.MaxPixels,
	})
	images := imaging.NewPool(compressor, cfg.Image.Workers, m)

	mailer, err := newMailer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("mail init failed")
	}

	// Wire dependencies: repository → service → handler
	tokenSvc := token.NewService(token.NewRepository(pool), cfg.JWT.Secret, token.TTLs{
		Access:        cfg.JWT.AccessTTL(),
		Refresh:       cfg.JWT.RefreshTTL(),
		ResetPassword: cfg.JWT.ResetPasswordTTL(),
		VerifyEmail:   cfg.JWT.VerifyEmailTTL(),
	})

	userSvc := user.NewService(user.NewRepository(pool))
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(userSvc, tokenSvc, mailer, auth.NewGoogleVerifier(ctx, cfg.GoogleClientID))
	authHandler := auth.NewHandler(authSvc)

	fileSvc := file.NewService(file.NewRepository(pool), blobs, images)
	fileHandler := file.NewHandler(fileSvc, cfg.UploadMaxBytes, "/api/v1/file")

	requireAuth := appMiddleware.RequireAuth(tokenSvc, userSvc.RoleOf)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(m.Middleware)
	r.Use(appMiddleware.NewSanitizer().Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.IsProduction() && cfg.AuthRateLimitPerMinute > 0 {
				r.Use(appMiddleware.NewFailureLimiter(cfg.AuthRateLimitPerMinute).Middleware)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Post("/refresh-tokens", authHandler.RefreshTokens)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/verify-email", authHandler.VerifyEmail)
			r.Post("/google", authHandler.Google)
			r.With(requireAuth).Post("/send-verification-email", authHandler.SendVerificationEmail)
			r.With(requireAuth).Post("/change-password", authHandler.ChangePassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(appMiddleware.RequireRights(roles.ManageUsers)).Post("/", userHandler.CreateUser)
			r.With(appMiddleware.RequireRights(roles.GetUsers)).Get("/", userHandler.GetUsers)
			r.With(appMiddleware.RequireRights(roles.GetUsers)).Get("/search", userHandler.SearchUsers)
			r.With(appMiddleware.RequireRights(roles.GetUsers)).Get("/count", userHandler.CountUsers)
			r.Route("/{userId}", func(r chi.Router) {
				r.With(appMiddleware.RequireRights(roles.GetUsers)).Get("/", userHandler.GetUser)
				r.With(appMiddleware.RequireRights(roles.ManageUsers)).Patch("/", userHandler.UpdateUser)
				r.With(appMiddleware.RequireRights(roles.ManageUsers)).Delete("/", userHandler.DeleteUser)
			})
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", userHandler.GetMe)
			r.Patch("/", userHandler.UpdateMe)
		})

		r.Route("/file", func(r chi.Router) {
			r.With(requireAuth).Post("/", fileHandler.Upload)
			r.Get("/{fileId}", fileHandler.Get)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("using in-memory object storage; uploads are lost on restart")
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewMinioStorage(ctx,
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.Bucket,
		cfg.Storage.UseSSL,
	)
}

func newMailer(cfg *config.Config) (*mail.Mailer, error) {
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; emails will be logged instead of sent")
		return mail.NewMailer(mail.LogSender{}, cfg.ServerBaseURL), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		return nil, err
	}
	return mail.NewMailer(sender, cfg.ServerBaseURL), nil
}
