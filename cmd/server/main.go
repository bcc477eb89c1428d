package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/avdeyev/gamecast/internal/adapters/http"
	"github.com/avdeyev/gamecast/internal/adapters/discovery"
	"github.com/avdeyev/gamecast/internal/adapters/gamepad"
	"github.com/avdeyev/gamecast/internal/adapters/launcher"
	sig "github.com/avdeyev/gamecast/internal/adapters/signal"
	"github.com/avdeyev/gamecast/internal/app"
	"github.com/avdeyev/gamecast/internal/app/input"
	"github.com/avdeyev/gamecast/internal/app/orch"
	"github.com/avdeyev/gamecast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := app.NewRegistry(cfg.GraceWindow)
	injector := gamepad.New()
	launch := launcher.New(cfg.EmulatorCmd)
	inputs := input.NewRouter(registry, injector)

	o := orch.New(registry, launch, injector, inputs)
	ctl := sig.NewController(o, inputs)

	r := router.SetupRouter(ctx, cfg, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	adv := discovery.New(cfg.AdvertiseName)
	if cfg.Advertise {
		if err := adv.Advertise(cfg.Port); err != nil {
			log.Warn().Err(err).Msg("mdns advertise failed")
		}
		defer adv.StopAdvertising()
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("gamecast relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	o.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
