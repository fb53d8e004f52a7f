package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/setlog/setlog/internal/auth"
	"github.com/setlog/setlog/internal/config"
	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
	"github.com/setlog/setlog/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	// Run database migrations
	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Pending-authorization store: Redis when configured (multi-process
	// deployments), otherwise in-process with a periodic sweep.
	var pending store.PendingStore
	if cfg.RedisURL != "" {
		rps, err := store.NewRedisPendingStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis pending store: %w", err)
		}
		defer rps.Close()
		pending = rps
	} else {
		mps := store.NewMemoryPendingStore()
		pending = mps

		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		go func() {
			ticker := time.NewTicker(cfg.PendingAuthTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := mps.Sweep(); n > 0 {
						slog.Debug("swept expired pending authorizations", "removed", n)
					}
				case <-sweepCtx.Done():
					return
				}
			}
		}()
	}

	// Both providers are always registered; an unconfigured one answers its
	// /config diagnostic and turns away authorize attempts with 503.
	providers := map[string]oauth.Provider{
		"google":     oauth.NewGoogle(cfg.Google),
		"soundcloud": oauth.NewSoundCloud(cfg.SoundCloud),
	}
	providerConfigs := map[string]oauth.Config{
		"google":     cfg.Google,
		"soundcloud": cfg.SoundCloud,
	}

	issuer := token.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)

	h := auth.AuthHandler{
		PS:              ps,
		Tokens:          issuer,
		Custodian:       auth.NewCustodian(ps, providers),
		Resolver:        auth.NewResolver(ps),
		Pending:         pending,
		PendingTTL:      cfg.PendingAuthTTL,
		Providers:       providers,
		ProviderConfigs: providerConfigs,
		Environment:     cfg.Environment,
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(&h, issuer)}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("setlog auth listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler, issuer *token.Issuer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Get("/{provider}/authorize", h.Authorize)
		r.Post("/{provider}/callback", h.Callback)
		r.Get("/{provider}/config", h.ProviderConfig)

		// Authentication required routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(issuer))
			r.Get("/me", h.Me)
			r.Get("/{provider}/profile", h.ProviderProfile)
		})
	})

	return r
}
