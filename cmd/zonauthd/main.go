// Package main запускает сервер зоны zonauth.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/udisondev/zonauth/internal/appdir"
	"github.com/udisondev/zonauth/pkg/agent"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: XDG config dir)")
	initOnly := flag.Bool("init", false, "initialize app directory and exit")
	flag.Parse()

	// Инициализация директории приложения
	layout, err := appdir.InitServer()
	if err != nil {
		slog.Error("init app directory", "error", err)
		os.Exit(1)
	}

	if *initOnly {
		fmt.Printf("Initialized: %s\n", appdir.Dir())
		fmt.Printf("Config: %s (created: %t)\n", layout.Config, layout.ConfigCreated)
		fmt.Printf("Cert: %s (issued: %t)\n", layout.Cert, layout.CertIssued)
		fmt.Printf("Logs: %s\n", layout.Logs)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Загружаем конфигурацию
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromAppDir()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Настраиваем логирование с ротацией
	setupLogging(cfg.Log)

	slog.Info("zonauthd starting",
		"config_dir", appdir.Dir(),
		"zone", cfg.Zone.Name,
		"address", cfg.Server.Addr(),
		"federation", len(cfg.Federation),
	)

	// pprof сервер для профилирования (опционально)
	if pprofAddr := os.Getenv("ZONAUTH_PPROF"); pprofAddr != "" {
		go func() {
			slog.Info("pprof server started", "addr", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}

	// Создаём контекст с отменой по сигналам
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []agent.Option
	if cfg.Metrics.Enabled {
		m, stop := serveMetrics(cfg.Metrics.Addr)
		defer stop()
		opts = append(opts, agent.WithMetrics(m))
	}

	// Запускаем сервер зоны
	return agent.Run(ctx, cfg, opts...)
}

// serveMetrics поднимает HTTP endpoint /metrics с отдельным реестром.
func serveMetrics(addr string) (*metrics.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown", "error", err)
		}
	}
}

func setupLogging(cfg config.LogConfig) {
	var output io.Writer = os.Stdout

	// Настраиваем ротацию логов если указан файл
	if cfg.File != "" {
		output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // MB
			MaxAge:     7,   // days
			MaxBackups: 5,
			Compress:   true,
			LocalTime:  true,
		}
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(handler))
}
