// cmd/relay/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/zerou/internal/auth"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/relay"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := config.NewLogger()

	var err error
	if priv, pub := config.GetEnv("SEAT_KEY_PRIVATE", ""), config.GetEnv("SEAT_KEY_PUBLIC", ""); priv != "" && pub != "" {
		err = auth.InitFromPath(priv, pub)
	} else {
		err = auth.Init()
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize seat tokens")
	}

	srv := relay.NewServer(logger, relay.Options{
		RoomTTL: config.GetEnvDuration("ROOM_IDLE_TTL", 30*time.Minute),
	})

	addr := ":8080"
	if port := config.GetEnv("PORT", ""); port != "" {
		addr = ":" + port
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("relay listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.RunJanitor(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("relay exited")
	}
	logger.Info("relay shutdown complete")
}
