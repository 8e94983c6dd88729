package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/verity/internal/api"
	"github.com/nugget/verity/internal/buildinfo"
	"github.com/nugget/verity/internal/email"
	"github.com/nugget/verity/internal/mqtt"
	"github.com/nugget/verity/internal/summarizer"
)

// runServe is the primary operating mode: the chat API, the idle
// session sweeper, and the optional MQTT publisher run side by side
// until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels the shared context
//  2. The HTTP server drains in-flight requests
//  3. MQTT publishes "offline" and disconnects
//  4. The sweeper finishes its current sweep and stops
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(stdout)
	logger.Info("starting Verity", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sess, err := openSessions(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// --- Notification sinks ---
	var sinks []summarizer.Sink
	if cfg.Email.Configured() {
		sinks = append(sinks, email.NewSender(cfg.Email, logger))
		logger.Info("email digests enabled", "host", cfg.Email.Host)
	}

	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(filepath.Dir(cfg.Database.Path))
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		mqttPub = mqtt.New(cfg.MQTT, instanceID, a.tokens, &statsAdapter{
			cache: sess.cache,
			model: cfg.LLM.Model,
		}, logger)
		sinks = append(sinks, mqttPub)
		logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "instance_id", instanceID)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}
	if len(sinks) == 0 {
		logger.Warn("no digest sinks configured, idle chats will be evicted without a summary")
	}

	// --- Sweeper ---
	summaryModel := cfg.Sessions.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.LLM.Model
	}
	worker := summarizer.New(sess.cache, sess.store, a.llm, sinks, logger, summarizer.Config{
		Interval:  cfg.Sessions.Interval,
		IdleAfter: cfg.Sessions.IdleAfter,
		Timeout:   cfg.Sessions.SummaryTimeout,
		Grace:     cfg.Sessions.ShutdownGrace,
		Model:     summaryModel,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.loop, sess.cache, logger)
	server.SetOwners(sess.store)

	g, gctx := errgroup.WithContext(ctx)

	worker.Start(gctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !api.IsClosed(err) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if mqttPub != nil {
		g.Go(func() error {
			if err := mqttPub.Start(gctx); err != nil {
				// The broker is optional; the API keeps serving.
				logger.Error("mqtt publisher failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
		// The worker may still be delivering digests; sinks stay up until
		// it returns.
		worker.Stop()
		if mqttPub != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := mqttPub.Stop(stopCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Verity stopped")
	return nil
}
