package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ntripcaster/caster/internal/adminapi"
	"github.com/ntripcaster/caster/internal/caster"
	"github.com/ntripcaster/caster/internal/catalog"
	"github.com/ntripcaster/caster/internal/config"
	"github.com/ntripcaster/caster/internal/fanout"
	"github.com/ntripcaster/caster/internal/metrics"
	"github.com/ntripcaster/caster/internal/reaper"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/sourcetable"
)

func main() {
	configFile := flag.String("config", "cmd/ntripcaster/caster.yaml", "Path to config file")
	catalogPath := flag.String("catalog", "./data/caster.db", "Path to the SQLite catalog database")
	flag.Parse()

	logger := newLogger()

	cfg, err := config.Load(*configFile, nil)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	logger.SetLevel(mustParseLevel(cfg.LogLevel()))
	logger.SetOutput(&lumberjack.Logger{
		Filename:   cfg.LogDir() + "/ntripcaster.log",
		MaxSize:    cfg.LogMaxSize(),
		MaxBackups: cfg.LogBackupCount(),
	})

	store, err := catalog.Open(*catalogPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open catalog")
	}
	defer store.Close()

	if err := store.Bootstrap(cfg.DefaultAdminUsername(), cfg.DefaultAdminPassword()); err != nil {
		logger.WithError(err).Fatal("failed to bootstrap default admin account")
	}

	reg := registry.New(cfg.MaxUserConnsPerMount())
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	hooks := caster.Hooks{
		OnUploadConnected: func(mount string) {
			m.UploadsTotal.Inc()
			m.MountsOnline.Inc()
		},
		OnUploadDisconnected: func(mount string) {
			m.MountsOnline.Dec()
		},
		OnSubscriberJoined: func(mount, username string) {
			m.SubscribersOnline.Inc()
		},
		OnSubscriberLeft: func(mount, username string) {
			m.SubscribersOnline.Dec()
		},
		OnBytesRelayed: func(mount string, n int) {
			m.BytesRelayed.Add(float64(n))
		},
	}

	srv := caster.New(caster.Config{
		Addr: fmt.Sprintf("%s:%d", cfg.Host(), cfg.NTRIPPort()),
		Identity: sourcetable.CasterIdentity{
			Host:       cfg.Host(),
			Port:       cfg.NTRIPPort(),
			Identifier: cfg.AppName(),
			Operator:   cfg.AppContact(),
			Country:    cfg.CasterCountry(),
			Latitude:   cfg.CasterLatitude(),
			Longitude:  cfg.CasterLongitude(),
		},
		RingBufferSize:    cfg.RingBufferSize(),
		MaxUserConnsPer:   cfg.MaxUserConnsPerMount(),
		ClientIdleTimeout: cfg.ClientTimeout(),
		ChunkedV2:         cfg.Chunked20(),
		KeepaliveEnabled:  cfg.KeepaliveEnabled(),
		KeepaliveIdle:     cfg.KeepaliveIdle(),
	}, store, reg, logger, hooks)

	fanoutEngine := fanout.New(reg, srv, logger, fanout.Config{
		BroadcastInterval: cfg.BroadcastInterval(),
		DataSendTimeout:   cfg.DataSendTimeout(),
		ChunkedV2:         cfg.Chunked20(),
	}, func(sub *registry.UserConnection, reason string) {
		m.SubscriberEvictions.WithLabelValues(reason).Inc()
	})

	reap := reaper.New(reg, logger, 10*time.Second, cfg.MountTimeout(), cfg.ClientTimeout())

	admin := adminapi.New(fmt.Sprintf("%s:%d", cfg.Host(), cfg.WebPort()), store, reg, m, logger, cfg.AdminAPIKey())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go fanoutEngine.Run(ctx)
	go reap.Run(ctx)
	go func() {
		logger.WithField("addr", admin.Addr).Info("starting admin API")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("admin API server stopped")
		}
	}()

	go func() {
		logger.WithField("addr", srv.Addr()).Info("starting NTRIP caster")
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.WithError(err).Error("caster listener stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	admin.Shutdown(shutdownCtx)
	srv.Close()
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func mustParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
