package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/config"
	"github.com/stlalpha/xfer/internal/logging"
	"github.com/stlalpha/xfer/internal/metrics"
	"github.com/stlalpha/xfer/internal/netinfo"
	"github.com/stlalpha/xfer/internal/scheduler"
	"github.com/stlalpha/xfer/internal/session"
	"github.com/stlalpha/xfer/internal/telnetserver"
	"github.com/stlalpha/xfer/internal/transfer"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("Failed to get working directory: %v", err)
	}

	flags := config.NewFlags(flag.CommandLine, config.Default(cwd))
	flag.Parse()

	if flags.Version {
		fmt.Println(config.Version)
		return
	}

	cfg, err := config.Load(flags.ConfigPath, config.Default(cwd))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg, err = config.Validate(flags.Apply(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := scheduler.Validate(cfg.StatusSchedule); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(logging.Options{File: cfg.LogFile, Debug: cfg.Debug, JSON: cfg.LogJSON})
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		logrus.Errorf("%v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(cfg)
	registry := session.NewRegistry()
	handler := session.NewHandler(cfg, engine, registry)

	srv, err := telnetserver.NewServer(telnetserver.Config{
		Port:   cfg.Port,
		Host:   cfg.Host,
		Telnet: cfg.Telnet,
		Handler: func(ctx context.Context, conn telnetserver.Conn) {
			handler.Serve(ctx, conn)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	port := cfg.Port
	if addr, ok := srv.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	fmt.Printf("Server now listening in %s:%d\n", netinfo.LocalIPv4(), port)
	logrus.WithFields(logrus.Fields{
		"addr":      srv.Addr().String(),
		"directory": cfg.Directory,
		"secure":    cfg.Secure,
		"telnet":    cfg.Telnet,
		"engine":    cfg.Engine,
	}).Info("Server started")

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logrus.Infof("Metrics available at http://%s/metrics", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	sched := scheduler.NewScheduler(cfg.StatusSchedule, registry, nil)
	go func() {
		if err := sched.Start(ctx); err != nil {
			logrus.WithError(err).Error("Status scheduler failed")
		}
	}()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
		logrus.Info("Shutting down...")
	case err := <-served:
		if err != nil {
			return err
		}
	}

	srv.Close()
	srv.Wait()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
	logrus.Info("Server stopped")
	return nil
}

func newEngine(cfg config.Config) transfer.Engine {
	if cfg.Engine == config.EngineExec {
		return transfer.NewExecEngine(cfg.ExecCommand, cfg.ExecArgs)
	}
	return transfer.NewBuiltinEngine()
}
