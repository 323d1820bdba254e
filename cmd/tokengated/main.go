// Command tokengated serves the token lifecycle API over HTTP.
//
// Configuration comes from the environment (see serverConfig). The binary
// wires a Redis-backed user store, mounts the auth routes under /auth, and
// exposes /healthz and Prometheus metrics on /metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	tokengate "github.com/tokengate/tokengate"
	promexport "github.com/tokengate/tokengate/export/prometheus"
	"github.com/tokengate/tokengate/httpapi"
	"github.com/tokengate/tokengate/userstore"
)

type serverConfig struct {
	Addr            string        `env:"TOKENGATE_ADDR" env-default:":8080"`
	RedisAddr       string        `env:"TOKENGATE_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword   string        `env:"TOKENGATE_REDIS_PASSWORD"`
	RedisDB         int           `env:"TOKENGATE_REDIS_DB" env-default:"0"`
	AccessSecret    string        `env:"TOKENGATE_ACCESS_SECRET" env-required:"true"`
	RefreshSecret   string        `env:"TOKENGATE_REFRESH_SECRET" env-required:"true"`
	AccessTTL       time.Duration `env:"TOKENGATE_ACCESS_TTL" env-default:"15m"`
	RefreshTTL      time.Duration `env:"TOKENGATE_REFRESH_TTL" env-default:"168h"`
	Issuer          string        `env:"TOKENGATE_ISSUER" env-default:"tokengate"`
	MaxLoginTries   int           `env:"TOKENGATE_MAX_LOGIN_ATTEMPTS" env-default:"0"`
	LoginCooldown   time.Duration `env:"TOKENGATE_LOGIN_COOLDOWN" env-default:"15m"`
	AuditToStdout   bool          `env:"TOKENGATE_AUDIT_STDOUT" env-default:"true"`
	ShutdownTimeout time.Duration `env:"TOKENGATE_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg serverConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return err
	}

	engineCfg := tokengate.DefaultConfig()
	engineCfg.JWT.AccessSecret = []byte(cfg.AccessSecret)
	engineCfg.JWT.RefreshSecret = []byte(cfg.RefreshSecret)
	engineCfg.JWT.AccessTTL = cfg.AccessTTL
	engineCfg.JWT.RefreshTTL = cfg.RefreshTTL
	engineCfg.JWT.Issuer = cfg.Issuer
	engineCfg.RateLimit.MaxLoginAttempts = cfg.MaxLoginTries
	engineCfg.RateLimit.LoginCooldownDuration = cfg.LoginCooldown

	builder := tokengate.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(userstore.New(rdb, engineCfg.Store.UserPrefix))
	if cfg.AuditToStdout {
		builder = builder.WithAuditSink(tokengate.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Mount("/auth", httpapi.NewRouter(engine))
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		latency, err := engine.Ping(r.Context())
		if err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		logger.Debug("health check", "redis_latency", latency)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("stopped", "audit_dropped", engine.AuditDropped())
	return nil
}
