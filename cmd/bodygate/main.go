package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/AlexKimmel/bodygate/internal/body"
	"github.com/AlexKimmel/bodygate/internal/config"
	"github.com/AlexKimmel/bodygate/internal/gateway"
	"github.com/AlexKimmel/bodygate/internal/obs"
	"github.com/AlexKimmel/bodygate/internal/routing"
)

const version = "v0.1.0"

func main() {
	configPath := pflag.StringP("config", "c", "./config.yaml", "path to the YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides server.addr")
	logLevel := pflag.String("log-level", "", "log level, overrides observability.log_level")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := obs.SetupLogger("info", os.Stderr)
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Observability.LogLevel = *logLevel
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Msg("Setup logger")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})

	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	router := buildRouter(cfg, metrics)
	for _, rt := range router.Routes() {
		logger.Info().
			Str("route", rt.ID).
			Str("prefix", rt.Prefix).
			Str("format", string(rt.Format)).
			Str("limit", rt.Limit.String()).
			Msg("route mounted")
	}
	mux.Handle("/", router)

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.Recover(),
		gateway.Errors(gateway.DefaultErrorHandler),
		gateway.BodyLimit(cfg.Server.MaxBody()),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

func buildRouter(cfg *config.Root, metrics *obs.Metrics) *routing.Router {
	router := routing.New()
	for _, rc := range cfg.Routes {
		methods := make(map[string]struct{}, len(rc.Match.Methods))
		for _, m := range rc.Match.Methods {
			methods[m] = struct{}{}
		}

		rt := &routing.Route{
			ID:      rc.ID,
			Methods: methods,
			Prefix:  rc.Match.PathPrefix,
			Format:  rc.Body.BodyFormat(),
			Limit:   rc.Body.Limit().Min(cfg.Server.MaxBody()),
		}
		rt.Handler = gateway.Chain(
			http.HandlerFunc(echo),
			metrics.Middleware(),
			body.New(rt.Format, body.WithLimit(rt.Limit), body.WithObserver(metrics)),
		)
		router.Add(rt)
	}
	return router
}

type echoResponse struct {
	Route   string      `json:"route"`
	Format  body.Format `json:"format"`
	Size    int         `json:"size"`
	Payload any         `json:"payload"`
}

// echo reports what the body middleware decoded.
func echo(w http.ResponseWriter, r *http.Request) {
	v, format, ok := body.Payload(r)
	if !ok {
		gateway.Fail(w, r, errors.New("no decoded body on request"))
		return
	}

	resp := echoResponse{Format: format, Payload: v}
	if rt, ok := routing.RouteFrom(r); ok {
		resp.Route = rt.ID
	}
	switch p := v.(type) {
	case []byte:
		resp.Size = len(p)
		// raw bodies are echoed as text rather than base64
		resp.Payload = string(p)
	case string:
		resp.Size = len(p)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		gateway.Fail(w, r, fmt.Errorf("encode echo response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(b, '\n')); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("write echo response")
	}
}
