package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/qna-web-bff/internal/authclient"
	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	bffhttp "github.com/pribylovaa/qna-web-bff/internal/http"
	"github.com/pribylovaa/qna-web-bff/internal/http/handlers"
	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/internal/oauth"
	"github.com/pribylovaa/qna-web-bff/internal/session"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting web-bff", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Опциональный Redis: single-flight обновления и отметки logout-all.
	var store session.Store
	if cfg.Redis.URL != "" {
		st, err := session.NewRedisStore(cfg.Redis.URL, "")
		if err != nil {
			log.Error("redis_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		store = st

		defer func() {
			if cerr := st.Close(); cerr != nil {
				log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
			}
		}()

		log.Info("redis_store_initialized")
	} else {
		log.Info("redis_store_disabled")
	}

	auth := authclient.New(cfg)
	pipe := session.NewPipeline(auth, classifyExchangeError,
		session.WithStore(store),
	)
	codec := session.NewCodec(cfg.Session)
	provider := oauth.NewProvider(cfg.Google, cfg.Timeouts.Exchange)
	gw := gateway.New(cfg)

	h := handlers.New(auth, pipe, codec, store, provider, gw, cfg.Session)

	opts := bffhttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
		Codec:   codec,
		Pipe:    pipe,
		Store:   store,
	}

	apiHandler := bffhttp.NewRouter(h, opts)

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("web_bff_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// classifyExchangeError — таксономия клиента обмена -> код страницы ошибки.
func classifyExchangeError(err error) models.ErrorPageCode {
	switch authclient.KindOf(err) {
	case authclient.KindUnreachable:
		return models.ErrorPageServiceUnavailable
	case authclient.KindTokenRejected:
		return models.ErrorPageAuthenticationFailed
	case authclient.KindConfiguration:
		return models.ErrorPageConfiguration
	default:
		return models.ErrorPageAuthServiceError
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
