package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magickw/tiercache"
	"github.com/magickw/tiercache/pkg/middleware"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := tiercache.LoadEnv()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "tiercache ", log.LstdFlags)

	cache, err := tiercache.New(
		tiercache.WithConfig(cfg),
		tiercache.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if err := cache.Initialize(ctx); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := cache.Stop(shutdownCtx); err != nil {
			logger.Printf("stop: %v", err)
		}
	}()

	svc := tiercache.ApplyMiddleware(cache, func(next tiercache.Service) tiercache.Service {
		return middleware.NewLoggingMiddleware(next, logger)
	})

	report := svc.Capabilities()
	fmt.Printf("support tier: %s\n", report.Tier)
	fmt.Printf("enhanced mode: %t\n", svc.IsEnhancedModeAvailable())

	if err := svc.Cache(ctx, "greeting", map[string]any{"message": "hello"}, time.Minute); err != nil {
		return err
	}

	if value, ok := svc.Get(ctx, "greeting"); ok {
		fmt.Printf("cached value: %v\n", value)
	}

	if cfg.MgmtAddr != "" {
		var opts []tiercache.ManagementHTTPOption
		if cfg.MgmtToken != "" {
			opts = append(opts, tiercache.WithMgmtBearerToken(cfg.MgmtToken))
		}

		srv := tiercache.NewManagementHTTPServer(cfg.MgmtAddr, opts...)
		if err := srv.Start(ctx, cache); err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Printf("management server on %s", srv.Address())

		<-ctx.Done()
	}

	return nil
}
